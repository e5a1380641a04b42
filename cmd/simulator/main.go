// Simulator plays the physical voting device over TCP. Point the bridge at
// it with BRIDGE_DEVICE_ADDRESS=tcp://localhost:9000.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const junkFrequency = 7 // every Nth line is deliberate garbage

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	addr := ":9000"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	mainCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalChan
		logger.Info("shutdown signal received, stopping the simulator")
		cancel()
	}()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen", "addr", addr, "error", err)
		os.Exit(1)
	}
	go func() {
		<-mainCtx.Done()
		listener.Close()
	}()

	logger.Info("simulator running, waiting for the bridge to connect", "addr", addr)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if mainCtx.Err() != nil {
				logger.Info("simulator terminated")
				return
			}
			logger.Warn("accept failed", "error", err)
			continue
		}
		logger.Info("bridge connected", "remote", conn.RemoteAddr())
		go emitVotes(mainCtx, conn, logger)
	}
}

// emitVotes writes the boot banner and then a steady trickle of votes, with
// the occasional malformed line the way a noisy serial link produces them.
func emitVotes(ctx context.Context, conn net.Conn, logger *slog.Logger) {
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "READY\n"); err != nil {
		return
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lineCounter int
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			lineCounter++
			var line string
			if lineCounter%junkFrequency == 0 {
				line = "DEBUG,button bounce filtered"
			} else {
				line = fmt.Sprintf("VOTE,%d", rand.Intn(4)+1)
			}
			if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
				logger.Info("bridge disconnected", "error", err)
				return
			}
			logger.Info("emitted", "line", line)
		}
	}
}
