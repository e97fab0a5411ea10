package canbus

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"go.einride.tech/can/pkg/socketcan"
)

// SocketCANBus reads frames from a Linux socketcan interface (typically
// can0 on the collection Pi, with the Kvaser leaf bridged via slcand).
type SocketCANBus struct {
	conn net.Conn
	recv *socketcan.Receiver
}

// DialSocketCAN opens the named CAN interface for receiving.
func DialSocketCAN(ctx context.Context, ifname string) (*SocketCANBus, error) {
	conn, err := socketcan.DialContext(ctx, "can", ifname)
	if err != nil {
		return nil, fmt.Errorf("failed to open CAN interface %s: %w", ifname, err)
	}
	return &SocketCANBus{
		conn: conn,
		recv: socketcan.NewReceiver(conn),
	}, nil
}

// Receive blocks until the next frame arrives. Cancelling the context only
// takes effect once the underlying socket is closed; the collector closes
// the bus from its shutdown path.
func (b *SocketCANBus) Receive(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	if !b.recv.Receive() {
		if err := b.recv.Err(); err != nil {
			return Frame{}, fmt.Errorf("CAN receive failed: %w", err)
		}
		return Frame{}, io.EOF
	}

	f := b.recv.Frame()
	data := make([]byte, f.Length)
	copy(data, f.Data[:f.Length])

	return Frame{
		ID:        f.ID,
		Data:      data,
		DLC:       f.Length,
		Timestamp: time.Now(),
	}, nil
}

// Close closes the underlying socket, which unblocks any pending Receive.
func (b *SocketCANBus) Close() error {
	return b.conn.Close()
}
