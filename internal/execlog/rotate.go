package execlog

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/hochfrequenz/claude-sched/internal/domain"
)

// DefaultKeepMonths is the retention window when none is configured
const DefaultKeepMonths = 6

// RotateReport describes what a rotation removed, or would remove on a dry run
type RotateReport struct {
	Cutoff     string   `json:"cutoff"`
	DryRun     bool     `json:"dry_run"`
	Partitions []string `json:"partitions"`
	Files      []string `json:"files"`
}

// Rotate deletes every partition strictly older than the month keepMonths
// before now, along with its files.
func Rotate(root string, keepMonths int, now time.Time, dryRun bool) (*RotateReport, error) {
	if keepMonths <= 0 {
		keepMonths = DefaultKeepMonths
	}
	cutoff := time.Date(now.Year(), now.Month()-time.Month(keepMonths), 1, 0, 0, 0, 0, now.Location())
	report := &RotateReport{
		Cutoff:     cutoff.Format(partitionLayout),
		DryRun:     dryRun,
		Partitions: []string{},
		Files:      []string{},
	}

	dirs, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return report, nil
		}
		return nil, errors.Mark(errors.Wrapf(err, "reading log root %s", root), domain.ErrStoreIO)
	}

	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		month, err := time.ParseInLocation(partitionLayout, d.Name(), now.Location())
		if err != nil || !month.Before(cutoff) {
			continue
		}

		dir := filepath.Join(root, d.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return report, errors.Mark(errors.Wrapf(err, "reading partition %s", dir), domain.ErrStoreIO)
		}
		for _, f := range files {
			if !f.IsDir() {
				report.Files = append(report.Files, filepath.Join(dir, f.Name()))
			}
		}
		report.Partitions = append(report.Partitions, dir)

		if dryRun {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return report, errors.Mark(errors.Wrapf(err, "removing partition %s", dir), domain.ErrStoreIO)
		}
	}

	sort.Strings(report.Partitions)
	sort.Strings(report.Files)
	return report, nil
}
