// Package remote pushes the tally to the rate-limited aggregation endpoint
// and pulls the last known state at startup. The endpoint accepts only
// absolute per-candidate counts, so every push supersedes the previous one;
// there is no delivery queue, only "send the latest when allowed".
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/holidayvote/bridge/internal/model"
)

// ErrSyncUnavailable reports that the remote endpoint could not be read at
// startup. The bridge proceeds with local-only state.
var ErrSyncUnavailable = errors.New("remote: sync unavailable")

// Result of a push attempt.
type Result int

const (
	Pushed Result = iota
	Skipped
	Failed
)

func (r Result) String() string {
	switch r {
	case Pushed:
		return "pushed"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type Config struct {
	BaseURL     string
	ChannelID   string
	WriteAPIKey string
	ReadAPIKey  string
	Candidates  int
	// MinInterval is the rate floor imposed by the endpoint; pushes closer
	// together than this are skipped without a request.
	MinInterval time.Duration
	// Timeout bounds each HTTP request so a hung endpoint cannot stall the
	// push schedule. Defaults to 10s.
	Timeout time.Duration
}

type Synchronizer struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger

	mu           sync.Mutex
	lastPushed   model.Tally
	lastPushTime time.Time
	lastPushOK   bool
}

func New(cfg Config, logger *slog.Logger) *Synchronizer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Synchronizer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// PullInitial reads the last recorded per-candidate counts from the remote
// endpoint. A channel with no data yet yields the zero tally without error;
// any transport, HTTP, or parse failure yields the zero tally and
// ErrSyncUnavailable so startup can continue on local state alone.
func (s *Synchronizer) PullInitial(ctx context.Context) (model.Tally, error) {
	zero := model.NewTally(s.cfg.Candidates)

	endpoint := fmt.Sprintf("%s/channels/%s/feeds/last.json?api_key=%s",
		s.cfg.BaseURL, s.cfg.ChannelID, url.QueryEscape(s.cfg.ReadAPIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrSyncUnavailable, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrSyncUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return zero, fmt.Errorf("%w: HTTP %d", ErrSyncUnavailable, resp.StatusCode)
	}

	var feed map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrSyncUnavailable, err)
	}
	if _, ok := feed["field1"]; !ok {
		s.logger.Info("no remote data yet, starting fresh")
		return zero, nil
	}

	tally := model.NewTally(s.cfg.Candidates)
	for id := 1; id <= s.cfg.Candidates; id++ {
		raw, ok := feed[fmt.Sprintf("field%d", id)]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case string:
			count, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return zero, fmt.Errorf("%w: field%d: %v", ErrSyncUnavailable, id, err)
			}
			tally[model.CandidateID(id)] = count
		case float64:
			tally[model.CandidateID(id)] = int(v)
		default:
			return zero, fmt.Errorf("%w: field%d has unexpected type", ErrSyncUnavailable, id)
		}
	}
	return tally, nil
}

// MaybePush sends the tally if the rate floor has elapsed and the tally has
// changed since the last successful push. A failed request leaves the push
// time untouched so the next tick retries immediately once eligible.
func (s *Synchronizer) MaybePush(ctx context.Context, tally model.Tally, now time.Time) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastPushTime.IsZero() && now.Sub(s.lastPushTime) < s.cfg.MinInterval {
		return Skipped
	}
	if s.lastPushed != nil && tally.Equal(s.lastPushed) {
		return Skipped
	}
	return s.push(ctx, tally, now)
}

// Flush pushes unconditionally, ignoring the rate floor. Used once at
// shutdown; a tally identical to the last pushed one is still skipped.
func (s *Synchronizer) Flush(ctx context.Context, tally model.Tally) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPushed != nil && tally.Equal(s.lastPushed) {
		return Skipped
	}
	return s.push(ctx, tally, time.Now())
}

// LastPushSucceeded reports whether the most recent push attempt succeeded.
func (s *Synchronizer) LastPushSucceeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPushOK
}

// push issues the write request. Caller holds s.mu.
func (s *Synchronizer) push(ctx context.Context, tally model.Tally, now time.Time) Result {
	form := url.Values{}
	form.Set("api_key", s.cfg.WriteAPIKey)
	for id := 1; id <= s.cfg.Candidates; id++ {
		form.Set(fmt.Sprintf("field%d", id), strconv.Itoa(tally[model.CandidateID(id)]))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.BaseURL+"/update", strings.NewReader(form.Encode()))
	if err != nil {
		s.lastPushOK = false
		return Failed
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		s.lastPushOK = false
		s.logger.Warn("tally push failed", "error", err)
		return Failed
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	entry := strings.TrimSpace(string(body))

	// The endpoint answers the new entry id, or "0" when the write was
	// rejected (rate limited or bad key).
	if resp.StatusCode != http.StatusOK || entry == "0" {
		s.lastPushOK = false
		s.logger.Warn("tally push rejected", "status", resp.StatusCode, "body", entry)
		return Failed
	}

	s.lastPushed = tally.Clone()
	s.lastPushTime = now
	s.lastPushOK = true
	s.logger.Info("tally pushed", "entry", entry, "total", tally.Total())
	return Pushed
}
