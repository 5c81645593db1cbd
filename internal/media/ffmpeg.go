package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// maxStderrTail bounds how much ffmpeg stderr is kept for error reports.
const maxStderrTail = 16 * 1024

// FFmpegOption configures an FFmpegSource.
type FFmpegOption func(*FFmpegSource)

// WithFFprobePath sets the ffprobe binary. Defaults to "ffprobe".
func WithFFprobePath(path string) FFmpegOption {
	return func(s *FFmpegSource) {
		if path != "" {
			s.ffprobePath = path
		}
	}
}

// WithVerbosity sets the ffmpeg log verbosity (0 quiet .. 4 debug).
func WithVerbosity(level int) FFmpegOption {
	return func(s *FFmpegSource) {
		s.verbosity = level
	}
}

// WithPixelFormat forces the decoded pixel format instead of keeping the source one.
func WithPixelFormat(f PixelFormat) FFmpegOption {
	return func(s *FFmpegSource) {
		s.pixelFormat = f
	}
}

// WithStderr mirrors ffmpeg's stderr to w, in addition to the tail kept for errors.
func WithStderr(w io.Writer) FFmpegOption {
	return func(s *FFmpegSource) {
		s.stderr = w
	}
}

// FFmpegSource implements Source using the ffprobe and ffmpeg CLIs.
// ffprobe supplies track properties and the frame table; ffmpeg decodes the
// whole track to a rawvideo pipe that is consumed sequentially.
type FFmpegSource struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath  string
	ffprobePath string
	verbosity   int
	pixelFormat PixelFormat
	stderr      io.Writer
}

// Verify interface implementation at compile time.
var _ Source = (*FFmpegSource)(nil)

// NewFFmpegSource creates a new FFmpegSource.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegSource(ffmpegPath string, opts ...FFmpegOption) *FFmpegSource {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	s := &FFmpegSource{
		ffmpegPath:  ffmpegPath,
		ffprobePath: "ffprobe",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open probes the file and prepares a sequential decoder for its first video stream.
func (s *FFmpegSource) Open(ctx context.Context, path string) (Video, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	stream, err := s.probeStream(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	slots, err := s.frameTable(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrOpen, ErrNoFrames)
	}

	props, err := stream.properties(s.pixelFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	props.FrameCount = len(slots)

	return &ffmpegVideo{
		source: s,
		path:   path,
		props:  props,
		slots:  slots,
	}, nil
}

// probeStream is the subset of ffprobe's stream JSON the source needs.
type probeStream struct {
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	PixFmt            string `json:"pix_fmt"`
	RFrameRate        string `json:"r_frame_rate"`
	AvgFrameRate      string `json:"avg_frame_rate"`
	FieldOrder        string `json:"field_order"`
	SampleAspectRatio string `json:"sample_aspect_ratio"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

func (s *FFmpegSource) probeStream(ctx context.Context, path string) (*probeStream, error) {
	out, err := s.runProbe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,pix_fmt,r_frame_rate,avg_frame_rate,field_order,sample_aspect_ratio",
		"-of", "json",
		path,
	)
	if err != nil {
		return nil, err
	}
	return parseProbeOutput(out)
}

// parseProbeOutput decodes ffprobe JSON and returns the first video stream.
func parseProbeOutput(data []byte) (*probeStream, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return nil, ErrNoVideoStream
	}
	return &out.Streams[0], nil
}

// properties converts probe data into Properties using the requested output format.
func (p *probeStream) properties(override PixelFormat) (Properties, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return Properties{}, fmt.Errorf("invalid dimensions %dx%d", p.Width, p.Height)
	}

	rate, err := parseRational(p.RFrameRate, "/")
	if err != nil || !rate.Valid() {
		rate, err = parseRational(p.AvgFrameRate, "/")
	}
	if err != nil || !rate.Valid() {
		return Properties{}, fmt.Errorf("unknown frame rate (r=%q avg=%q)", p.RFrameRate, p.AvgFrameRate)
	}

	pixFmt, err := ResolvePixelFormat(p.PixFmt, override)
	if err != nil {
		return Properties{}, err
	}

	aspect, err := parseRational(p.SampleAspectRatio, ":")
	if err != nil || !aspect.Valid() {
		aspect = Rational{}
	}

	return Properties{
		Width:       p.Width,
		Height:      p.Height,
		FrameRate:   rate,
		PixelFormat: pixFmt,
		Interlace:   interlaceFromFieldOrder(p.FieldOrder),
		Aspect:      aspect,
	}, nil
}

// frameTable lists one slot per presentation frame. Packets carry the
// demuxer's corrupt flags. A decode pass over the same track tells which of
// them the decoder turns into frames, in the order the rawvideo pipe delivers
// them.
func (s *FFmpegSource) frameTable(ctx context.Context, path string) ([]frameSlot, error) {
	pkts, err := s.runProbe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "packet=pts,flags",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return nil, err
	}
	packets, err := parsePackets(pkts)
	if err != nil {
		return nil, err
	}

	frames, err := s.runProbe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "frame=best_effort_timestamp,duration,pkt_duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return nil, err
	}
	decoded, err := parseFrames(frames)
	if err != nil {
		return nil, err
	}
	return alignFrames(packets, decoded), nil
}

type packetHint struct {
	order int
	pts   int64
	hasTS bool
	hint  Hint
}

// parsePackets turns "pts,flags" CSV lines into packets in presentation
// order. Packets without a pts keep their decode position. The C flag marks
// a packet the demuxer found corrupt.
func parsePackets(data []byte) ([]packetHint, error) {
	var packets []packetHint
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		pkt := packetHint{order: len(packets), hint: HintDecodable}
		if len(fields) >= 2 {
			if pts, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64); err == nil {
				pkt.pts = pts
				pkt.hasTS = true
			}
		}
		flags := fields[len(fields)-1]
		if strings.Contains(flags, "C") {
			pkt.hint = HintCorrupt
		}
		packets = append(packets, pkt)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read packet list: %w", err)
	}

	if allTimestamped(packets, func(p packetHint) bool { return p.hasTS }) {
		sort.SliceStable(packets, func(i, j int) bool { return packets[i].pts < packets[j].pts })
	}
	return packets, nil
}

// decodedFrame is one frame the decoder produced while indexing.
type decodedFrame struct {
	PTS         *int64 `json:"best_effort_timestamp"`
	Duration    *int64 `json:"duration"`
	PktDuration *int64 `json:"pkt_duration"`
}

func (f decodedFrame) duration() int64 {
	switch {
	case f.Duration != nil && *f.Duration > 0:
		return *f.Duration
	case f.PktDuration != nil && *f.PktDuration > 0:
		return *f.PktDuration
	default:
		return 0
	}
}

type frameProbeOutput struct {
	Frames []decodedFrame `json:"frames"`
}

func parseFrames(data []byte) ([]decodedFrame, error) {
	var out frameProbeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse ffprobe frames: %w", err)
	}
	return out.Frames, nil
}

// frameSlot is one entry of the frame table.
type frameSlot struct {
	hint Hint
	// decoded is false for a packet the decoder produced no frame for; the
	// rawvideo pipe has nothing for that slot.
	decoded bool
}

// alignFrames merges packets and decoded frames into frame slots.
//
// Every decoded frame gets a slot. A packet whose pts falls inside a decoded
// frame's [pts, pts+duration) belongs to that frame, like the second field
// of a field-coded picture. Any other packet is a frame the decoder dropped
// and gets an undecoded slot at its presentation position, so later frames
// keep their index. Without timestamps on both sides only the decoded frames
// are indexed.
func alignFrames(packets []packetHint, frames []decodedFrame) []frameSlot {
	framesTimed := allTimestamped(frames, func(f decodedFrame) bool { return f.PTS != nil })
	packetsTimed := allTimestamped(packets, func(p packetHint) bool { return p.hasTS })
	for i := 1; framesTimed && i < len(frames); i++ {
		if *frames[i].PTS < *frames[i-1].PTS {
			framesTimed = false
		}
	}
	if !framesTimed || !packetsTimed {
		slots := make([]frameSlot, len(frames))
		for i := range slots {
			slots[i] = frameSlot{hint: HintDecodable, decoded: true}
		}
		return slots
	}

	slots := make([]frameSlot, 0, len(packets))

	j := 0
	last := -1 // index in frames of the most recent decoded slot
	for _, p := range packets {
		for j < len(frames) && *frames[j].PTS <= p.pts {
			slots = append(slots, frameSlot{hint: HintDecodable, decoded: true})
			last = j
			j++
		}
		if last >= 0 && slots[len(slots)-1].decoded && inFrame(frames[last], p.pts) {
			if p.hint == HintCorrupt {
				slots[len(slots)-1].hint = HintCorrupt
			}
			continue
		}
		slots = append(slots, frameSlot{hint: HintCorrupt})
	}
	for ; j < len(frames); j++ {
		slots = append(slots, frameSlot{hint: HintDecodable, decoded: true})
	}
	return slots
}

// inFrame reports whether pts lies within frame f.
func inFrame(f decodedFrame, pts int64) bool {
	start := *f.PTS
	d := f.duration()
	if d == 0 {
		return pts == start
	}
	return pts >= start && pts < start+d
}

func allTimestamped[T any](items []T, timed func(T) bool) bool {
	if len(items) == 0 {
		return false
	}
	for _, it := range items {
		if !timed(it) {
			return false
		}
	}
	return true
}

// parseRational parses "a<sep>b" into a Rational.
func parseRational(s, sep string) (Rational, error) {
	parts := strings.Split(strings.TrimSpace(s), sep)
	if len(parts) != 2 {
		return Rational{}, fmt.Errorf("invalid ratio %q", s)
	}
	num, err := strconv.Atoi(parts[0])
	if err != nil {
		return Rational{}, fmt.Errorf("invalid ratio %q: %w", s, err)
	}
	den, err := strconv.Atoi(parts[1])
	if err != nil {
		return Rational{}, fmt.Errorf("invalid ratio %q: %w", s, err)
	}
	return Rational{Num: num, Den: den}, nil
}

func interlaceFromFieldOrder(order string) Interlace {
	switch order {
	case "tt", "tb":
		return InterlaceTopFirst
	case "bb", "bt":
		return InterlaceBottomFirst
	default:
		return InterlaceProgressive
	}
}

// logLevel maps the CLI verbosity onto ffmpeg's -v values.
func logLevel(verbosity int) string {
	switch {
	case verbosity <= 0:
		return "quiet"
	case verbosity == 1:
		return "warning"
	case verbosity == 2:
		return "info"
	case verbosity == 3:
		return "verbose"
	default:
		return "debug"
	}
}

// runProbe executes ffprobe and returns stdout.
func (s *FFmpegSource) runProbe(ctx context.Context, args ...string) ([]byte, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, s.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return nil, &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}

// decodeArgs builds the ffmpeg command line for the rawvideo pipe.
func (s *FFmpegSource) decodeArgs(path string, f PixelFormat) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-v", logLevel(s.verbosity),
		"-i", path,
		"-map", "0:v:0",
		"-fps_mode", "passthrough", // one output frame per decoded frame
		"-f", "rawvideo",
		"-pix_fmt", string(f),
		"pipe:1",
	}
}

// ffmpegVideo is a Video decoded by one long-running ffmpeg process.
type ffmpegVideo struct {
	source *FFmpegSource
	path   string
	props  Properties
	slots  []frameSlot

	mu        sync.Mutex
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	stdout    *bufio.Reader
	stderr    *tailBuffer
	buf       []byte
	cursor    int
	exhausted bool
	closed    bool
}

var (
	_ Video        = (*ffmpegVideo)(nil)
	_ HintProvider = (*ffmpegVideo)(nil)
	_ Rewinder     = (*ffmpegVideo)(nil)
)

var errDropped = errors.New("decoder produced no frame for this packet")

func (v *ffmpegVideo) Properties() Properties {
	return v.props
}

// FrameHints returns the hints gathered at open time. Slots the decoder
// dropped are reported corrupt.
func (v *ffmpegVideo) FrameHints(_ context.Context) ([]Hint, error) {
	out := make([]Hint, len(v.slots))
	for i, slot := range v.slots {
		out[i] = slot.hint
	}
	return out, nil
}

func (v *ffmpegVideo) DecodeFrame(ctx context.Context, index int) (*Frame, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, ErrClosed
	}
	if err := CheckIndex(index, v.cursor, v.props.FrameCount); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v.cmd == nil {
		if err := v.start(); err != nil {
			return nil, err
		}
	}

	for v.cursor < index && !v.exhausted {
		_ = v.readNext()
	}
	if v.exhausted {
		v.cursor = index + 1
		return nil, &DecodeError{Index: index, Err: v.exhaustedErr()}
	}

	if err := v.readNext(); err != nil {
		return nil, &DecodeError{Index: index, Err: err}
	}
	if v.slots[index].hint == HintCorrupt {
		return nil, &DecodeError{Index: index, Err: errors.New("packet flagged corrupt")}
	}

	planes, err := v.props.PixelFormat.SplitPlanes(v.buf, v.props.Width, v.props.Height)
	if err != nil {
		return nil, &DecodeError{Index: index, Err: err}
	}
	return &Frame{Index: index, Planes: planes}, nil
}

// readNext consumes the slot at the cursor and advances it, whether or not
// the read succeeds. Dropped slots have nothing in the pipe. A short read
// marks the pipe exhausted.
func (v *ffmpegVideo) readNext() error {
	slot := v.slots[v.cursor]
	v.cursor++
	if !slot.decoded {
		return errDropped
	}
	if v.exhausted {
		return v.exhaustedErr()
	}
	if _, err := io.ReadFull(v.stdout, v.buf); err != nil {
		v.exhausted = true
		return v.exhaustedErr()
	}
	return nil
}

func (v *ffmpegVideo) exhaustedErr() error {
	return fmt.Errorf("decoder produced fewer frames than indexed: %w", &FFmpegError{
		Args:   v.source.decodeArgs(v.path, v.props.PixelFormat),
		Stderr: v.stderr.String(),
		Err:    io.ErrUnexpectedEOF,
	})
}

func (v *ffmpegVideo) start() error {
	// The decoder outlives any single DecodeFrame call, so it gets its own
	// context that Close cancels.
	ctx, cancel := context.WithCancel(context.Background())
	args := v.source.decodeArgs(v.path, v.props.PixelFormat)

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, v.source.ffmpegPath, args...)
	v.stderr = &tailBuffer{limit: maxStderrTail}
	if v.source.stderr != nil {
		cmd.Stderr = io.MultiWriter(v.stderr, v.source.stderr)
	} else {
		cmd.Stderr = v.stderr
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return &FFmpegError{Args: args, Err: err}
	}

	v.cmd = cmd
	v.cancel = cancel
	v.stdout = bufio.NewReaderSize(stdout, 1<<20)
	v.buf = make([]byte, v.props.FrameSize())
	return nil
}

// stop kills the decoder process. Killing ffmpeg before it reaches the end of
// the track is expected, so the wait error is discarded.
func (v *ffmpegVideo) stop() {
	if v.cmd == nil {
		return
	}
	v.cancel()
	_ = v.cmd.Wait()
	v.cmd = nil
	v.buf = nil
}

// Rewind stops the decoder and resets the cursor to frame 0. The next
// DecodeFrame starts a fresh process; the frame table is kept.
func (v *ffmpegVideo) Rewind() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrClosed
	}
	v.stop()
	v.cursor = 0
	v.exhausted = false
	return nil
}

// Close stops the decoder process.
func (v *ffmpegVideo) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	v.stop()
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// FFmpegError represents an error from running ffmpeg or ffprobe, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
