package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/holidayvote/bridge/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEndpoint mimics the aggregation endpoint: GET .../feeds/last.json
// serves lastFeed, POST /update counts writes and records the last form.
type fakeEndpoint struct {
	lastFeed    string
	rejectWrite bool

	mu       sync.Mutex
	writes   int64
	lastForm map[string]string
}

func (f *fakeEndpoint) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/update", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.writes++
		n := f.writes
		f.lastForm = map[string]string{}
		for key := range r.PostForm {
			f.lastForm[key] = r.PostForm.Get(key)
		}
		reject := f.rejectWrite
		f.mu.Unlock()
		if reject {
			fmt.Fprint(w, "0")
			return
		}
		fmt.Fprintf(w, "%d", n)
	})
	mux.HandleFunc("/channels/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, f.lastFeed)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeEndpoint) writeCount() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeEndpoint) form(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastForm[key]
}

func (f *fakeEndpoint) setReject(reject bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectWrite = reject
}

func newTestSync(t *testing.T, baseURL string, minInterval time.Duration) *Synchronizer {
	t.Helper()
	return New(Config{
		BaseURL:     baseURL,
		ChannelID:   "12345",
		WriteAPIKey: "WKEY",
		ReadAPIKey:  "RKEY",
		Candidates:  4,
		MinInterval: minInterval,
	}, testLogger())
}

func TestPullInitialParsesFields(t *testing.T) {
	ep := &fakeEndpoint{lastFeed: `{"created_at":"2026-08-25T10:00:00Z","entry_id":7,"field1":"5","field2":"3","field3":"2","field4":"1"}`}
	srv := ep.server(t)
	s := newTestSync(t, srv.URL, time.Minute)

	tally, err := s.PullInitial(context.Background())
	if err != nil {
		t.Fatalf("PullInitial failed: %v", err)
	}
	want := model.Tally{1: 5, 2: 3, 3: 2, 4: 1}
	if !tally.Equal(want) {
		t.Errorf("tally = %v, want %v", tally, want)
	}
}

func TestPullInitialHandlesNullAndNumericFields(t *testing.T) {
	ep := &fakeEndpoint{lastFeed: `{"field1":7,"field2":null,"field3":"0","field4":"2"}`}
	srv := ep.server(t)
	s := newTestSync(t, srv.URL, time.Minute)

	tally, err := s.PullInitial(context.Background())
	if err != nil {
		t.Fatalf("PullInitial failed: %v", err)
	}
	want := model.Tally{1: 7, 2: 0, 3: 0, 4: 2}
	if !tally.Equal(want) {
		t.Errorf("tally = %v, want %v", tally, want)
	}
}

func TestPullInitialEmptyChannelIsNotAnError(t *testing.T) {
	ep := &fakeEndpoint{lastFeed: `{"created_at":"2026-08-25T10:00:00Z","entry_id":0}`}
	srv := ep.server(t)
	s := newTestSync(t, srv.URL, time.Minute)

	tally, err := s.PullInitial(context.Background())
	if err != nil {
		t.Fatalf("PullInitial failed: %v", err)
	}
	if !tally.Equal(model.NewTally(4)) {
		t.Errorf("tally = %v, want zero tally", tally)
	}
}

func TestPullInitialFailureReturnsZeroAndSyncUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	s := newTestSync(t, srv.URL, time.Minute)

	tally, err := s.PullInitial(context.Background())
	if !errors.Is(err, ErrSyncUnavailable) {
		t.Fatalf("err = %v, want ErrSyncUnavailable", err)
	}
	if !tally.Equal(model.NewTally(4)) {
		t.Errorf("tally = %v, want zero tally", tally)
	}
}

func TestPullInitialUnparsableFieldReturnsZeroAndSyncUnavailable(t *testing.T) {
	ep := &fakeEndpoint{lastFeed: `{"field1":"not-a-number"}`}
	srv := ep.server(t)
	s := newTestSync(t, srv.URL, time.Minute)

	tally, err := s.PullInitial(context.Background())
	if !errors.Is(err, ErrSyncUnavailable) {
		t.Fatalf("err = %v, want ErrSyncUnavailable", err)
	}
	if !tally.Equal(model.NewTally(4)) {
		t.Errorf("tally = %v, want zero tally", tally)
	}
}

func TestMaybePushSendsAbsoluteCounts(t *testing.T) {
	ep := &fakeEndpoint{}
	srv := ep.server(t)
	s := newTestSync(t, srv.URL, time.Minute)

	tally := model.Tally{1: 2, 2: 0, 3: 1, 4: 1}
	if result := s.MaybePush(context.Background(), tally, time.Now()); result != Pushed {
		t.Fatalf("result = %v, want Pushed", result)
	}
	if ep.writeCount() != 1 {
		t.Fatalf("writes = %d, want 1", ep.writeCount())
	}
	want := map[string]string{"api_key": "WKEY", "field1": "2", "field2": "0", "field3": "1", "field4": "1"}
	for key, value := range want {
		if ep.form(key) != value {
			t.Errorf("form[%s] = %q, want %q", key, ep.form(key), value)
		}
	}
}

func TestMaybePushRespectsRateFloor(t *testing.T) {
	ep := &fakeEndpoint{}
	srv := ep.server(t)
	s := newTestSync(t, srv.URL, 15*time.Second)

	now := time.Now()
	if result := s.MaybePush(context.Background(), model.Tally{1: 1, 2: 0, 3: 0, 4: 0}, now); result != Pushed {
		t.Fatalf("first push = %v, want Pushed", result)
	}
	// Changed tally, but inside the floor: no request at all.
	if result := s.MaybePush(context.Background(), model.Tally{1: 2, 2: 0, 3: 0, 4: 0}, now.Add(5*time.Second)); result != Skipped {
		t.Fatalf("second push = %v, want Skipped", result)
	}
	if ep.writeCount() != 1 {
		t.Errorf("writes = %d, want exactly 1", ep.writeCount())
	}
	// Past the floor the changed tally goes out.
	if result := s.MaybePush(context.Background(), model.Tally{1: 2, 2: 0, 3: 0, 4: 0}, now.Add(16*time.Second)); result != Pushed {
		t.Fatalf("third push = %v, want Pushed", result)
	}
}

func TestMaybePushSkipsIdenticalTally(t *testing.T) {
	ep := &fakeEndpoint{}
	srv := ep.server(t)
	s := newTestSync(t, srv.URL, time.Second)

	tally := model.Tally{1: 1, 2: 0, 3: 0, 4: 0}
	now := time.Now()
	if result := s.MaybePush(context.Background(), tally, now); result != Pushed {
		t.Fatalf("first push = %v, want Pushed", result)
	}
	// Identical tally is redundant regardless of elapsed time.
	if result := s.MaybePush(context.Background(), tally.Clone(), now.Add(time.Hour)); result != Skipped {
		t.Fatalf("redundant push = %v, want Skipped", result)
	}
	if ep.writeCount() != 1 {
		t.Errorf("writes = %d, want 1", ep.writeCount())
	}
}

func TestFailedPushRetriesOnNextTick(t *testing.T) {
	ep := &fakeEndpoint{rejectWrite: true}
	srv := ep.server(t)
	s := newTestSync(t, srv.URL, time.Hour)

	tally := model.Tally{1: 1, 2: 0, 3: 0, 4: 0}
	now := time.Now()
	if result := s.MaybePush(context.Background(), tally, now); result != Failed {
		t.Fatalf("result = %v, want Failed", result)
	}
	if s.LastPushSucceeded() {
		t.Error("LastPushSucceeded = true after a rejected write")
	}

	// The failure must not consume the rate budget: the very next attempt
	// is eligible even though the floor is an hour.
	ep.setReject(false)
	if result := s.MaybePush(context.Background(), tally, now.Add(time.Second)); result != Pushed {
		t.Fatalf("retry = %v, want Pushed", result)
	}
}

func TestFlushBypassesRateFloor(t *testing.T) {
	ep := &fakeEndpoint{}
	srv := ep.server(t)
	s := newTestSync(t, srv.URL, time.Hour)

	now := time.Now()
	if result := s.MaybePush(context.Background(), model.Tally{1: 1, 2: 0, 3: 0, 4: 0}, now); result != Pushed {
		t.Fatalf("push = %v, want Pushed", result)
	}
	if result := s.Flush(context.Background(), model.Tally{1: 2, 2: 0, 3: 0, 4: 0}); result != Pushed {
		t.Fatalf("flush = %v, want Pushed", result)
	}
	if ep.writeCount() != 2 {
		t.Errorf("writes = %d, want 2", ep.writeCount())
	}
}

func TestFlushSkipsIdenticalTally(t *testing.T) {
	ep := &fakeEndpoint{}
	srv := ep.server(t)
	s := newTestSync(t, srv.URL, time.Hour)

	tally := model.Tally{1: 1, 2: 0, 3: 0, 4: 0}
	if result := s.MaybePush(context.Background(), tally, time.Now()); result != Pushed {
		t.Fatalf("push = %v, want Pushed", result)
	}
	if result := s.Flush(context.Background(), tally.Clone()); result != Skipped {
		t.Fatalf("flush = %v, want Skipped", result)
	}
}
