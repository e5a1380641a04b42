// Package bridge wires the device stream into the tally store and drives
// the remote synchronizer. The connection lifecycle is an explicit state
// machine: disconnected, connected (seeding), reading. A mid-run disconnect
// goes back to disconnected and retries forever; startup retries are
// bounded and exhausting them is fatal.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/holidayvote/bridge/internal/decode"
	"github.com/holidayvote/bridge/internal/event"
	"github.com/holidayvote/bridge/internal/metrics"
	"github.com/holidayvote/bridge/internal/model"
	"github.com/holidayvote/bridge/internal/pubsub"
	"github.com/holidayvote/bridge/internal/remote"
	"github.com/holidayvote/bridge/internal/store"
	"github.com/holidayvote/bridge/internal/stream"
)

// ErrStorageFailing reports repeated persistence failures. Without durable
// storage the bridge cannot honestly claim a vote was counted, so this is
// the one mid-run condition that stops ingestion.
var ErrStorageFailing = errors.New("bridge: durable storage is failing")

// Consecutive Apply persistence failures tolerated before giving up.
const maxPersistFailures = 5

type Options struct {
	Opener       stream.Opener
	Store        *store.Store
	Synchronizer *remote.Synchronizer
	Mirror       *event.Mirror
	Hub          *pubsub.Hub // optional
	Metrics      *metrics.BridgeMetrics
	Logger       *slog.Logger

	Candidates     int
	CandidateName  func(model.CandidateID) string // optional, for log lines
	PushInterval   time.Duration
	ConnectRetries uint64
	MaxBackoff     time.Duration
}

type Coordinator struct {
	opts Options

	logger *slog.Logger

	// consecutive persistence failures; reset on every counted vote
	persistFailures int
}

func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.CandidateName == nil {
		opts.CandidateName = func(id model.CandidateID) string {
			return strconv.Itoa(int(id))
		}
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.PushInterval == 0 {
		opts.PushInterval = 15 * time.Second
	}
	return &Coordinator{opts: opts, logger: opts.Logger}
}

// Run operates the bridge until the context is cancelled or a fatal
// condition occurs. The push schedule runs concurrently with the read loop
// and is unaffected by device reconnects. A fatal exit cancels the push
// loop too, after its final flush.
func (c *Coordinator) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.pushLoop(runCtx)
	}()
	defer wg.Wait()
	defer cancel()

	src, err := c.connect(runCtx, true)
	if err != nil {
		return fmt.Errorf("connect to device: %w", err)
	}
	if err := c.seed(runCtx); err != nil {
		src.Close()
		return err
	}

	for {
		err := c.readLoop(runCtx, src)
		src.Close()
		if runCtx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrStorageFailing) {
			return err
		}
		c.logger.Warn("device stream lost, reconnecting", "error", err)
		c.opts.Metrics.Reconnects.Inc()

		src, err = c.connect(runCtx, false)
		if err != nil {
			// Only context cancellation ends an unbounded reconnect.
			return nil
		}
	}
}

// connect opens the device stream with exponential backoff. Bounded mode is
// used at startup: exhausting the retry budget returns an error instead of
// hanging forever against a device that was never there.
func (c *Coordinator) connect(ctx context.Context, bounded bool) (stream.LineSource, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = c.opts.MaxBackoff
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = backoff.WithContext(b, ctx)
	if bounded {
		policy = backoff.WithMaxRetries(policy, c.opts.ConnectRetries)
	}

	var src stream.LineSource
	operation := func() error {
		s, err := c.opts.Opener.Open(ctx)
		if err != nil {
			c.logger.Warn("device open failed", "error", err)
			return err
		}
		src = s
		return nil
	}
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	c.logger.Info("device connected")
	return src, nil
}

// seed runs once, on the first successful connection: pull the remote
// tally, merge it with the local snapshot and initialize the store. A
// reconnect later in the run finds the store initialized and skips this.
func (c *Coordinator) seed(ctx context.Context) error {
	if c.opts.Store.Initialized() {
		return nil
	}
	remoteTally, err := c.opts.Synchronizer.PullInitial(ctx)
	if err != nil {
		c.logger.Warn("remote tally unavailable, starting from local state", "error", err)
	}
	seed, err := c.opts.Store.Recover(ctx, remoteTally)
	if err != nil {
		return fmt.Errorf("recover tally: %w", err)
	}
	c.logger.Info("tally initialized", "total", seed.Total())
	c.broadcastTally()
	return nil
}

// readLoop consumes device lines until the stream fails or storage gives
// up. Closing the source from the watcher goroutine unblocks a pending read
// on cancellation.
func (c *Coordinator) readLoop(ctx context.Context, src stream.LineSource) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			src.Close()
		case <-done:
		}
	}()

	for {
		line, err := src.ReadLine(ctx)
		if err != nil {
			return err
		}
		if err := c.handleLine(ctx, line); err != nil {
			return err
		}
	}
}

// handleLine decodes and applies one device line. Decode failures and
// single persistence failures are logged and absorbed; only sustained
// persistence failure is returned as fatal.
func (c *Coordinator) handleLine(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if line == decode.Banner {
		c.logger.Info("device ready")
		return nil
	}

	ev, err := decode.Decode(line, c.opts.Candidates, time.Now())
	if err != nil {
		c.opts.Metrics.DecodeFailures.Inc()
		c.logger.Warn("discarding undecodable line", "error", err)
		return nil
	}

	start := time.Now()
	count, err := c.opts.Store.Apply(ctx, ev)
	if err != nil {
		c.logger.Error("vote not counted", "candidate", ev.Candidate, "error", err)
		var pe *store.PersistenceError
		if errors.As(err, &pe) {
			c.persistFailures++
			if c.persistFailures >= maxPersistFailures {
				return fmt.Errorf("%w: %d consecutive write failures", ErrStorageFailing, c.persistFailures)
			}
		}
		return nil
	}
	c.persistFailures = 0

	c.opts.Metrics.ApplyTime.Observe(time.Since(start).Seconds())
	c.opts.Metrics.VotesAccepted.WithLabelValues(strconv.Itoa(int(ev.Candidate))).Inc()
	c.logger.Info("vote counted",
		"candidate", c.opts.CandidateName(ev.Candidate), "total", count)

	if c.opts.Mirror != nil && !c.opts.Mirror.Offer(ev, count) {
		c.opts.Metrics.MirrorDropped.Inc()
		c.logger.Warn("mirror queue full, vote not mirrored", "candidate", ev.Candidate)
	}
	c.broadcastTally()
	return nil
}

// pushLoop fires the synchronizer on a fixed cadence, always with the
// latest tally. Push requests get their own timeout context detached from
// the run context so an in-flight push completes during shutdown; the loop
// itself stops starting new pushes once cancelled, after one final flush.
func (c *Coordinator) pushLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.finalFlush()
			return

		case <-ticker.C:
			if !c.opts.Store.Initialized() {
				continue
			}
			pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			result := c.opts.Synchronizer.MaybePush(pushCtx, c.opts.Store.Current(), time.Now())
			cancel()
			c.opts.Metrics.Pushes.WithLabelValues(result.String()).Inc()
			if result == remote.Pushed {
				c.broadcastTally()
			}
		}
	}
}

// finalFlush pushes whatever the last tick missed. The rate floor is
// bypassed: the process is exiting and there is no next tick.
func (c *Coordinator) finalFlush() {
	if !c.opts.Store.Initialized() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result := c.opts.Synchronizer.Flush(ctx, c.opts.Store.Current())
	c.opts.Metrics.Pushes.WithLabelValues(result.String()).Inc()
	c.logger.Info("final push on shutdown", "result", result.String())
}

func (c *Coordinator) broadcastTally() {
	if c.opts.Hub == nil {
		return
	}
	data, err := json.Marshal(c.opts.Store.Current())
	if err != nil {
		return
	}
	c.opts.Hub.Broadcast(data)
}
