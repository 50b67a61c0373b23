package dashboard

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/hochfrequenz/claude-sched/internal/domain"
)

// DocumentLoader reads the schedule catalog
type DocumentLoader interface {
	Load() (*domain.Document, error)
}

// Generator writes the dashboard document to disk
type Generator struct {
	store DocumentLoader
	path  string
	now   func() time.Time
}

// NewGenerator creates a Generator writing to path
func NewGenerator(store DocumentLoader, path string) *Generator {
	return &Generator{store: store, path: path, now: time.Now}
}

// Path returns where the dashboard is written
func (g *Generator) Path() string {
	return g.path
}

// Refresh re-renders the dashboard from the current store. It never
// modifies the store.
func (g *Generator) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := g.store.Load()
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return errors.Wrap(err, "loading schedules for dashboard")
		}
		doc = &domain.Document{Version: domain.DocumentVersion}
	}

	content, err := Render(doc, g.now())
	if err != nil {
		return err
	}
	return writeAtomic(g.path, content)
}

func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "creating temp dashboard")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "writing dashboard")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "closing dashboard")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "replacing %s", path)
	}
	return nil
}
