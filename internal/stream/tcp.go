package stream

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPOpener dials a line-oriented TCP endpoint. Used by the simulator and
// tests in place of a physical serial device.
type TCPOpener struct {
	Address string
	Timeout time.Duration
}

func (o *TCPOpener) Open(ctx context.Context) (LineSource, error) {
	timeout := o.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", o.Address)
	if err != nil {
		return nil, fmt.Errorf("dial device at %s: %w", o.Address, err)
	}
	return NewSource(conn), nil
}
