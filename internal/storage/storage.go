// Package storage manages where segment files are written and where they end
// up. It defines the Storage interface (port) and implementations for a local
// output folder and for publishing closed segments to S3.
package storage

import "context"

// Storage defines output placement and publication of segment files.
type Storage interface {
	// Dir returns the local output folder.
	Dir() string

	// Path returns the local path for a segment file name.
	Path(name string) string

	// Publish is called once a segment file is closed. It returns the
	// segment's final location: the local path, or a URL for remote backends.
	Publish(ctx context.Context, path string) (location string, err error)
}
