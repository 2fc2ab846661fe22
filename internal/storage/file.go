package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "raidwatch/pkg/logx"
)

// compactEvery is the number of journal records between compactions.
const compactEvery = 1000

// fileStore keeps the whole key space in memory and persists it as:
//   - <prefix>.state.snapshot.json (compacted map)
//   - <prefix>.state.journal.jsonl (one record per mutation, fsynced)
//   - <prefix>.audit.jsonl         (append-only)
//
// Open replays the journal over the snapshot and compacts.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	auditFile    *os.File
	snapshotPath string
	journal      *os.File
	kv           map[string]json.RawMessage
	writes       int
}

type journalRecord struct {
	Op    string          `json:"op"` // put | del
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	kv := map[string]json.RawMessage{}
	snapPath := prefix + ".state.snapshot.json"
	journalPath := prefix + ".state.journal.jsonl"
	if err := loadSnapshot(snapPath, kv); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	replayed, err := replayJournal(journalPath, kv)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}

	s := &fileStore{log: log, auditFile: af, snapshotPath: snapPath, journal: jf, kv: kv}
	if replayed > 0 {
		s.mu.Lock()
		if err := s.compactLocked(); err != nil {
			log.Warn("state compact failed", logx.Err(err))
		}
		s.mu.Unlock()
	}
	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("keys", len(kv)), logx.Int("replayed", replayed))
	return s, nil
}

func (s *fileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, false, ErrClosed
	}
	v, ok := s.kv[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *fileStore) Put(_ context.Context, key string, value []byte) error {
	if err := checkValue(value); err != nil {
		return err
	}
	v := json.RawMessage(append([]byte(nil), value...))
	return s.mutate(journalRecord{Op: "put", Key: key, Value: v}, func() { s.kv[key] = v })
}

func (s *fileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	_, ok := s.kv[key]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.mutate(journalRecord{Op: "del", Key: key}, func() { delete(s.kv, key) })
}

// mutate journals rec and applies it in memory only once the record is on
// disk.
func (s *fileStore) mutate(rec journalRecord, apply func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := s.journal.Write(append(b, '\n')); err != nil {
		return err
	}
	if err := s.journal.Sync(); err != nil {
		return err
	}
	apply()

	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("state compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return prefixKeys(s.kv, prefix), nil
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.journal != nil {
		errs = append(errs, s.compactLocked(), s.journal.Close())
		s.journal = nil
	}
	if s.auditFile != nil {
		errs = append(errs, s.auditFile.Close())
		s.auditFile = nil
	}
	return errors.Join(errs...)
}

// compactLocked writes the snapshot via tmp + rename, then truncates the
// journal. A crash between the two steps replays records already in the
// snapshot, which is harmless.
func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.kv); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]json.RawMessage) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(&out)
}

// replayJournal applies journal records to out and returns how many were
// read. A torn trailing line is skipped.
func replayJournal(path string, out map[string]json.RawMessage) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Key == "" {
			continue
		}
		switch r.Op {
		case "put":
			out[r.Key] = r.Value
		case "del":
			delete(out, r.Key)
		}
		n++
	}
	return n, sc.Err()
}

func checkValue(v []byte) error {
	if !json.Valid(v) {
		return ErrInvalidValue
	}
	return nil
}
