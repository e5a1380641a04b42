package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// USB-serial chip signatures that identify the voting device. Covers the
// common Arduino boards and clones plus the generic Linux device names.
var usbSignatures = []string{
	"CH340",
	"CH341",
	"FT232",
	"FT231",
	"ARDUINO",
	"USB SERIAL",
	"USB-SERIAL",
	"ACM",
	"TTYUSB",
	"TTYACM",
}

// SerialOpener opens the device's serial port. Address "auto" (or empty)
// scans the available ports for a known USB-serial signature.
type SerialOpener struct {
	Address  string
	BaudRate int
	Logger   *slog.Logger
}

func (o *SerialOpener) Open(ctx context.Context) (LineSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := o.Address
	if name == "" || name == "auto" {
		detected, err := detectPort(o.Logger)
		if err != nil {
			return nil, err
		}
		name = detected
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: o.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	if o.Logger != nil {
		o.Logger.Info("serial port opened", "port", name, "baud", o.BaudRate)
	}
	return NewSource(port), nil
}

func detectPort(logger *slog.Logger) (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("enumerate serial ports: %w", err)
	}
	var matches []string
	for _, p := range ports {
		desc := strings.ToUpper(p.Product + " " + p.Name)
		for _, sig := range usbSignatures {
			if strings.Contains(desc, sig) {
				matches = append(matches, p.Name)
				break
			}
		}
	}
	if len(matches) == 0 {
		return "", errors.New("no voting device found on any serial port")
	}
	if len(matches) > 1 && logger != nil {
		logger.Info("multiple candidate devices detected, using first", "ports", matches)
	}
	return matches[0], nil
}
