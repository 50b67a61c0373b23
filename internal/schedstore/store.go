// Package schedstore persists the schedule catalog as a single JSON document.
//
// Every mutation is a read-modify-write performed under an exclusive lock
// file and committed with an atomic rename, so concurrent CLI invocations and
// execution controller runs serialize instead of losing updates.
package schedstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/hochfrequenz/claude-sched/internal/domain"
)

// DefaultLockTimeout bounds how long a mutation waits for the lock file
const DefaultLockTimeout = 5 * time.Second

var (
	// ErrStoreMissing is returned by Load when the document does not exist yet
	ErrStoreMissing = errors.New("schedule store does not exist")
	// ErrParse is returned when the document is not valid JSON
	ErrParse = errors.New("schedule store is malformed")
)

// Store provides file-backed schedule persistence
type Store struct {
	path        string
	lockTimeout time.Duration
	now         func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the clock used for last_updated stamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLockTimeout overrides DefaultLockTimeout
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// New creates a Store backed by the document at path
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:        path,
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the document location
func (s *Store) Path() string {
	return s.path
}

// Load reads the full document
func (s *Store) Load() (*domain.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Mark(
				errors.Wrapf(ErrStoreMissing, "reading %s", s.path), domain.ErrNotFound)
		}
		return nil, errors.Mark(errors.Wrapf(err, "reading schedule store %s", s.path), domain.ErrStoreIO)
	}

	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Mark(
			errors.WithSecondaryError(errors.Wrapf(ErrParse, "parsing %s", s.path), err),
			domain.ErrStoreIO)
	}
	if doc.Version <= 0 {
		doc.Version = domain.DocumentVersion
	}
	return &doc, nil
}

// loadOrEmpty treats a missing document as an empty catalog
func (s *Store) loadOrEmpty() (*domain.Document, error) {
	doc, err := s.Load()
	if errors.Is(err, ErrStoreMissing) {
		return &domain.Document{Version: domain.DocumentVersion}, nil
	}
	return doc, err
}

// List returns all schedules ordered by creation time
func (s *Store) List(enabledOnly bool) ([]*domain.Schedule, error) {
	doc, err := s.loadOrEmpty()
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Schedule, 0, len(doc.Schedules))
	for _, sched := range doc.Schedules {
		if enabledOnly && !sched.Enabled {
			continue
		}
		out = append(out, sched)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Created.Before(out[j].Created)
	})
	return out, nil
}

// Get returns the schedule with the given id
func (s *Store) Get(id string) (*domain.Schedule, error) {
	doc, err := s.Load()
	if err != nil {
		if errors.Is(err, ErrStoreMissing) {
			return nil, domain.ScheduleNotFound(id)
		}
		return nil, err
	}
	sched, _ := doc.Find(id)
	if sched == nil {
		return nil, domain.ScheduleNotFound(id)
	}
	return sched, nil
}

// Insert adds a new schedule. The id must not exist yet.
func (s *Store) Insert(sched *domain.Schedule) error {
	return s.mutate(func(doc *domain.Document) error {
		if existing, _ := doc.Find(sched.ID); existing != nil {
			return domain.Validationf("schedule id %q already exists", sched.ID)
		}
		doc.Schedules = append(doc.Schedules, sched)
		return nil
	})
}

// Update applies fn to the stored schedule and persists the result. If fn
// returns an error nothing is written.
func (s *Store) Update(id string, fn func(*domain.Schedule) error) (*domain.Schedule, error) {
	var updated *domain.Schedule
	err := s.mutate(func(doc *domain.Document) error {
		sched, _ := doc.Find(id)
		if sched == nil {
			return domain.ScheduleNotFound(id)
		}
		if err := fn(sched); err != nil {
			return err
		}
		updated = sched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the schedule and returns it
func (s *Store) Delete(id string) (*domain.Schedule, error) {
	var removed *domain.Schedule
	err := s.mutate(func(doc *domain.Document) error {
		sched, idx := doc.Find(id)
		if sched == nil {
			return domain.ScheduleNotFound(id)
		}
		removed = sched
		doc.Schedules = append(doc.Schedules[:idx], doc.Schedules[idx+1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *Store) mutate(fn func(*domain.Document) error) error {
	return withFileLock(s.path+".lock", s.lockTimeout, func() error {
		doc, err := s.loadOrEmpty()
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		doc.Version = domain.DocumentVersion
		doc.LastUpdated = s.now().UTC()
		if doc.Schedules == nil {
			doc.Schedules = []*domain.Schedule{}
		}
		if err := writeJSONAtomic(s.path, doc); err != nil {
			return errors.Mark(errors.Wrapf(err, "writing schedule store %s", s.path), domain.ErrStoreIO)
		}
		return nil
	})
}

func writeJSONAtomic(path string, payload any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
