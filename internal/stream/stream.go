// Package stream abstracts the device byte stream. The bridge only ever sees
// a source of lines; whether they arrive over a serial port or a TCP socket
// (simulator, tests) is decided by the opener.
package stream

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
)

// LineSource yields one device line at a time. ReadLine blocks until a line
// arrives, the underlying stream fails, or the source is closed; closing
// from another goroutine unblocks a pending read.
type LineSource interface {
	ReadLine(ctx context.Context) (string, error)
	Close() error
}

// Opener establishes a connection to the device byte stream. The coordinator
// calls it once at startup and again on every reconnect.
type Opener interface {
	Open(ctx context.Context) (LineSource, error)
}

// ForAddress picks an opener for a device address: "tcp://host:port" dials a
// socket, anything else (including "auto") is treated as a serial port.
func ForAddress(address string, baudRate int, logger *slog.Logger) Opener {
	if rest, ok := strings.CutPrefix(address, "tcp://"); ok {
		return &TCPOpener{Address: rest}
	}
	return &SerialOpener{Address: address, BaudRate: baudRate, Logger: logger}
}

type scanSource struct {
	closer  io.Closer
	scanner *bufio.Scanner
}

// NewSource wraps a raw byte stream in a line-scanning source.
func NewSource(rc io.ReadCloser) LineSource {
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 256), 4096)
	return &scanSource{closer: rc, scanner: sc}
}

func (s *scanSource) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *scanSource) Close() error {
	return s.closer.Close()
}
