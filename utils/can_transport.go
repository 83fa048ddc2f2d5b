//go:build linux || darwin
// +build linux darwin

package utils

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// CANWriter transmits frames onto the robot bus.
type CANWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

// CANReader delivers frames from the robot bus.
type CANReader interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

// SocketCANWriter implements CANWriter over a SocketCAN interface.
type SocketCANWriter struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

// NewSocketCANWriter opens iface ("can0", "vcan0", ...) for transmit.
func NewSocketCANWriter(ctx context.Context, iface string) (*SocketCANWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	return &SocketCANWriter{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

func (w *SocketCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	return w.tx.TransmitFrame(ctx, frame)
}

func (w *SocketCANWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// frameSource is the receive side of a CAN socket. Receive blocks
// until a frame is available and reports false when the socket is
// closed or broken.
type frameSource interface {
	Receive() bool
	Frame() can.Frame
}

// SocketCANReader implements CANReader over a SocketCAN interface. One
// long-lived goroutine drains the socket into a buffered channel, so a
// ReadFrame call abandoned by context cancellation never loses the
// frame in flight; the next call picks it up.
type SocketCANReader struct {
	conn   net.Conn
	frames chan can.Frame

	closeOnce sync.Once
	quit      chan struct{}
}

// NewSocketCANReader opens iface for receive.
func NewSocketCANReader(ctx context.Context, iface string) (*SocketCANReader, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	return newSocketCANReader(conn, socketcan.NewReceiver(conn)), nil
}

func newSocketCANReader(conn net.Conn, src frameSource) *SocketCANReader {
	r := &SocketCANReader{
		conn:   conn,
		frames: make(chan can.Frame, 64),
		quit:   make(chan struct{}),
	}
	go r.receive(src)
	return r
}

func (r *SocketCANReader) receive(src frameSource) {
	defer close(r.frames)
	for src.Receive() {
		select {
		case r.frames <- src.Frame():
		case <-r.quit:
			return
		}
	}
}

// ReadFrame blocks until the next frame arrives, ctx is canceled, or
// the reader is closed.
func (r *SocketCANReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case frame, ok := <-r.frames:
		if !ok {
			return can.Frame{}, fmt.Errorf("can receiver closed")
		}
		return frame, nil
	}
}

func (r *SocketCANReader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.quit)
		if r.conn != nil {
			err = r.conn.Close()
		}
	})
	return err
}
