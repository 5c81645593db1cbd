// Package id provides unique identifier generation for segmentation runs.
package id

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generate creates a new unique run ID.
// Format: run-<timestamp>-<first 8 hex digits of a random UUID>
// Example: run-1701432000-a1b2c3d4
func Generate() string {
	u, err := uuid.NewRandom()
	if err != nil {
		// Fallback to nanosecond timestamp if the random source fails
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("run-%d-%s", time.Now().Unix(), u.String()[:8])
}
