// Package transport defines the message-oriented connection BDX runs over.
// A Conn delivers each frame whole, reliably and in order; BDX does no
// fragmentation or reassembly of its own.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed is returned once either end of the connection is closed
	ErrClosed = errors.New("transport: connection closed")
	// ErrTimeout is returned when a receive deadline passes
	ErrTimeout = errors.New("transport: timeout")
)

// Conn carries BDX frames between two peers.
type Conn interface {
	// Send delivers one frame. The frame may be reused after Send returns.
	Send(ctx context.Context, frame []byte) error
	// Receive blocks for the next frame. A passed ctx deadline is reported
	// as ErrTimeout.
	Receive(ctx context.Context) ([]byte, error)
	// Close unblocks pending calls on both ends.
	Close() error
}

// ContextError converts a finished context into a transport error.
func ContextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
	return ctx.Err()
}

// pipeBuffer lets an abort StatusReport be queued while the peer is not
// reading; lock-step traffic never has more than one frame in flight.
const pipeBuffer = 4

// Pipe returns the two ends of an in-memory connection.
func Pipe() (Conn, Conn) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	aDone := make(chan struct{})
	bDone := make(chan struct{})

	a := &pipeConn{in: ba, out: ab, done: aDone, peerDone: bDone}
	b := &pipeConn{in: ab, out: ba, done: bDone, peerDone: aDone}
	return a, b
}

type pipeConn struct {
	in       <-chan []byte
	out      chan<- []byte
	done     chan struct{}
	peerDone <-chan struct{}
	once     sync.Once
}

func (p *pipeConn) Send(ctx context.Context, frame []byte) error {
	buf := append([]byte(nil), frame...)
	select {
	case <-p.done:
		return ErrClosed
	case <-p.peerDone:
		return ErrClosed
	default:
	}

	select {
	case p.out <- buf:
		return nil
	case <-p.done:
		return ErrClosed
	case <-p.peerDone:
		return ErrClosed
	case <-ctx.Done():
		return ContextError(ctx)
	}
}

func (p *pipeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-p.in:
		return frame, nil
	default:
	}

	select {
	case frame := <-p.in:
		return frame, nil
	case <-p.done:
		return nil, ErrClosed
	case <-p.peerDone:
		// Frames sent before the peer closed are still delivered.
		select {
		case frame := <-p.in:
			return frame, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ContextError(ctx)
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
