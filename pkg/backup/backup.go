// Package backup writes versioned JSON snapshots to a Storage and keeps a
// bounded number of them.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

const namePrefix = "backup-"

// Envelope wraps every snapshot with the writer's version and a timestamp.
type Envelope struct {
	Version   string          `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Storage is where snapshots live.
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

type Service struct {
	storage Storage
	version string
	now     func() time.Time
}

func NewService(storage Storage, version string) *Service {
	return &Service{storage: storage, version: version, now: time.Now}
}

// Create marshals data into a new snapshot and returns its name and size.
func (s *Service) Create(ctx context.Context, data interface{}) (string, int, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal backup data: %w", err)
	}

	ts := s.now().UTC()
	body, err := json.Marshal(Envelope{Version: s.version, Timestamp: ts, Data: raw})
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal backup: %w", err)
	}

	name := fmt.Sprintf("%s%s.json", namePrefix, ts.Format("20060102-150405.000"))
	if err := s.storage.Save(ctx, name, bytes.NewReader(body)); err != nil {
		return "", 0, fmt.Errorf("failed to save backup: %w", err)
	}
	return name, len(body), nil
}

// Load reads the named snapshot and decodes its data into v.
func (s *Service) Load(ctx context.Context, name string, v interface{}) (*Envelope, error) {
	r, err := s.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup: %w", err)
	}
	defer r.Close()

	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode backup %s: %w", name, err)
	}
	if v != nil {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return nil, fmt.Errorf("failed to decode backup data: %w", err)
		}
	}
	return &env, nil
}

// List returns snapshot names, oldest first.
func (s *Service) List(ctx context.Context) ([]string, error) {
	names, err := s.storage.List(ctx, namePrefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Prune deletes all but the newest keep snapshots. keep <= 0 keeps all.
func (s *Service) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	names, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) <= keep {
		return nil, nil
	}

	stale := names[:len(names)-keep]
	for _, name := range stale {
		if err := s.storage.Delete(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to delete backup %s: %w", name, err)
		}
	}
	return stale, nil
}
