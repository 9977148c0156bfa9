package bridge

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a Conn after Close or when the peer went away
var ErrClosed = errors.New("bridge connection closed")

// Conn is one side of the control ↔ agent link
type Conn interface {
	Send(ctx context.Context, msg Message) error
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// pipeConn is an in-memory Conn for running the agent inside the control process
type pipeConn struct {
	in   <-chan Message
	out  chan<- Message
	done chan struct{}
	peer *pipeConn
	once sync.Once
}

// Pipe returns two connected in-memory Conns
func Pipe() (Conn, Conn) {
	ab := make(chan Message, 16)
	ba := make(chan Message, 16)
	a := &pipeConn{in: ba, out: ab, done: make(chan struct{})}
	b := &pipeConn{in: ab, out: ba, done: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (c *pipeConn) Send(ctx context.Context, msg Message) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-c.peer.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	case <-c.peer.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *pipeConn) Receive(ctx context.Context) (Message, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.done:
		return Message{}, ErrClosed
	case <-c.peer.done:
		// drain anything the peer sent before closing
		select {
		case msg := <-c.in:
			return msg, nil
		default:
			return Message{}, ErrClosed
		}
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
