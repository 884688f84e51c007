package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind denotes the type of milestone an Update represents.
type Kind string

// Supported update kinds.
const (
	KindRunStart Kind = "RUN_START"
	KindOverall  Kind = "OVERALL"
	KindRunDone  Kind = "RUN_DONE"
)

// Update captures one change to a run's exported progress.
type Update struct {
	// RunID identifies the generation run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Kind denotes which milestone occurred.
	Kind Kind
	// Phase optionally names the event phase that produced the update.
	Phase string
	// Overall is the exported completion fraction after the update.
	Overall float64
	// Note lets emitters attach low-volume debug context.
	Note string
}

// Validate performs coarse validation on Update payloads.
func (u Update) Validate() error {
	if u.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if u.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch u.Kind {
	case KindRunStart, KindOverall, KindRunDone:
	default:
		return fmt.Errorf("unknown update kind %q", u.Kind)
	}
	if u.Overall < 0 || u.Overall > 1 {
		return fmt.Errorf("overall %f outside [0,1]", u.Overall)
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (u Update) RunUUID() uuid.UUID {
	return uuid.UUID(u.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Update form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
