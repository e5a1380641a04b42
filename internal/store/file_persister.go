package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/holidayvote/bridge/internal/model"
)

const (
	snapshotFile = "votes.json"
	auditFile    = "votes.csv"
)

var auditHeader = []string{"timestamp", "candidate", "count"}

// FilePersister keeps the snapshot as a JSON file and the audit log as a
// CSV file under one directory. Snapshot writes go through a temp file and
// rename so a crash can never leave a half-written snapshot behind.
type FilePersister struct {
	snapshotPath string
	auditPath    string
}

func NewFilePersister(dir string) (*FilePersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &FilePersister{
		snapshotPath: filepath.Join(dir, snapshotFile),
		auditPath:    filepath.Join(dir, auditFile),
	}, nil
}

func (p *FilePersister) LoadSnapshot(_ context.Context) (model.Tally, bool, error) {
	data, err := os.ReadFile(p.snapshotPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read snapshot: %w", err)
	}
	var tally model.Tally
	if err := json.Unmarshal(data, &tally); err != nil {
		return nil, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return tally, true, nil
}

func (p *FilePersister) SaveSnapshot(_ context.Context, tally model.Tally) error {
	data, err := json.Marshal(tally)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp := p.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, p.snapshotPath); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (p *FilePersister) AppendAudit(_ context.Context, rec model.AuditRecord) error {
	f, err := os.OpenFile(p.auditPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat audit log: %w", err)
	}
	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(auditHeader); err != nil {
			return fmt.Errorf("write audit header: %w", err)
		}
	}
	row := []string{
		rec.Timestamp.Format(time.RFC3339Nano),
		strconv.Itoa(int(rec.Candidate)),
		strconv.Itoa(rec.Count),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush audit record: %w", err)
	}
	return f.Close()
}

func (p *FilePersister) AuditCount(_ context.Context) (int, error) {
	f, err := os.Open(p.auditPath)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return 0, fmt.Errorf("read audit log: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return len(rows) - 1, nil // minus header
}

func (p *FilePersister) Close() error { return nil }
