package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"promocast/internal/target"
	logx "promocast/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.store.json  (snapshot, rewritten via tmp + rename on every mutation)
//   - <prefix>.audit.jsonl (append-only JSON Lines)
//
// With an empty snapshot path it degrades to a memory-only store.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	auditFile    *os.File
	data         snapshot

	// memory mode keeps audit entries here instead of a file.
	audit []AuditEntry
}

type snapshot struct {
	Targets []target.Target            `json:"targets"`
	Groups  []target.Group             `json:"groups"`
	Content map[string]json.RawMessage `json:"content"`
}

// NewMemory returns a store that never touches disk.
func NewMemory(log logx.Logger) Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &fileStore{log: log, data: snapshot{Content: map[string]json.RawMessage{}}}
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".store.json"
	auditPath := prefix + ".audit.jsonl"

	data := snapshot{Content: map[string]json.RawMessage{}}
	if err := loadSnapshot(snapPath, &data); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if data.Content == nil {
		data.Content = map[string]json.RawMessage{}
	}

	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	log.Debug("file store opened", logx.String("snapshot", snapPath), logx.Int("targets", len(data.Targets)), logx.Int("groups", len(data.Groups)))
	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		auditFile:    af,
		data:         data,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile != nil {
		err := s.auditFile.Close()
		s.auditFile = nil
		return err
	}
	return nil
}

func (s *fileStore) GetTargets(ctx context.Context) ([]target.Target, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]target.Target, len(s.data.Targets))
	copy(out, s.data.Targets)
	return out, nil
}

func (s *fileStore) GetGroups(ctx context.Context) ([]target.Group, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]target.Group, 0, len(s.data.Groups))
	for _, g := range s.data.Groups {
		g.TargetIDs = append([]string(nil), g.TargetIDs...)
		out = append(out, g)
	}
	return out, nil
}

func (s *fileStore) PutTarget(ctx context.Context, t target.Target) error {
	_ = ctx
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("target id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	replaced := false
	for i := range s.data.Targets {
		if s.data.Targets[i].ID == t.ID {
			s.data.Targets[i] = t
			replaced = true
			break
		}
	}
	if !replaced {
		s.data.Targets = append(s.data.Targets, t)
	}
	return s.flushLocked()
}

func (s *fileStore) DeleteTarget(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i := range s.data.Targets {
		if s.data.Targets[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	s.data.Targets = append(s.data.Targets[:idx], s.data.Targets[idx+1:]...)
	for gi := range s.data.Groups {
		ids := s.data.Groups[gi].TargetIDs[:0]
		for _, tid := range s.data.Groups[gi].TargetIDs {
			if tid != id {
				ids = append(ids, tid)
			}
		}
		s.data.Groups[gi].TargetIDs = ids
	}
	return s.flushLocked()
}

func (s *fileStore) PutGroup(ctx context.Context, g target.Group) error {
	_ = ctx
	if strings.TrimSpace(g.ID) == "" {
		return errors.New("group id is required")
	}
	g.TargetIDs = append([]string(nil), g.TargetIDs...)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Groups {
		if s.data.Groups[i].ID == g.ID {
			s.data.Groups[i] = g
			return s.flushLocked()
		}
	}
	s.data.Groups = append(s.data.Groups, g)
	return s.flushLocked()
}

func (s *fileStore) DeleteGroup(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Groups {
		if s.data.Groups[i].ID == id {
			s.data.Groups = append(s.data.Groups[:i], s.data.Groups[i+1:]...)
			return s.flushLocked()
		}
	}
	return ErrNotFound
}

func (s *fileStore) GetContent(ctx context.Context, platform string) (json.RawMessage, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data.Content[platform]
	if !ok {
		return nil, false, nil
	}
	return append(json.RawMessage(nil), b...), true, nil
}

func (s *fileStore) PutContent(ctx context.Context, platform string, blob json.RawMessage) error {
	_ = ctx
	if !json.Valid(blob) {
		return errors.New("content must be valid JSON")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Content[platform] = append(json.RawMessage(nil), blob...)
	return s.flushLocked()
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshotPath == "" {
		s.audit = append(s.audit, e)
		if len(s.audit) > 1000 {
			s.audit = s.audit[len(s.audit)-1000:]
		}
		return nil
	}
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

// flushLocked rewrites the snapshot atomically. No-op in memory mode.
func (s *fileStore) flushLocked() error {
	if s.snapshotPath == "" {
		return nil
	}
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		s.log.Warn("snapshot rename failed", logx.String("path", s.snapshotPath), logx.Err(err))
		return err
	}
	return nil
}

func loadSnapshot(path string, out *snapshot) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(out)
}
