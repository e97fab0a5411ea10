// Package canbus provides frame-level access to the motor controller's CAN
// bus. The controller broadcasts four transmit PDOs (COB-IDs 390, 646, 902
// and 1158) at 100 kbit/s; everything above frame reception lives in the
// decode and collector packages.
package canbus

import (
	"context"
	"time"
)

// Frame is a received CAN frame.
type Frame struct {
	ID        uint32
	Data      []byte
	DLC       uint8
	Flags     uint32
	Timestamp time.Time
}

// Bus is a source of CAN frames. Receive blocks until a frame arrives, the
// bus is closed, or the context is cancelled.
type Bus interface {
	Receive(ctx context.Context) (Frame, error)
	Close() error
}
