package sqlite

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IDFunc generates a new trace ID.
type IDFunc func() (string, error)

// ClockFunc returns the current time.
type ClockFunc func() time.Time

// newTraceID returns a random (version 4) UUID in canonical form.
func newTraceID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generating trace id: %w", err)
	}
	return id.String(), nil
}
