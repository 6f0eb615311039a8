package adapter

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	m "github.com/mouse-blink/libpack/internal/model"
)

const indexFileName = "_index.yaml"

// ReportStore persists and retrieves relocation reports.
type ReportStore interface {
	// SaveReport writes report into dir, replacing any earlier report for
	// the same root, and returns the file written.
	SaveReport(dir m.Path, report m.Report) (m.Path, error)
	// LoadReports reads every report stored in dir, ordered by root.
	LoadReports(dir m.Path) ([]m.Report, error)
	// RegenerateIndex rewrites the summary of all reports stored in dir.
	RegenerateIndex(dir m.Path) error
}

// LocalReportStore keeps one YAML file per relocated root on the local disk.
type LocalReportStore struct{}

// NewReportStore constructs a ReportStore implementation.
func NewReportStore() *LocalReportStore {
	return &LocalReportStore{}
}

type indexEntry struct {
	Reports   int           `yaml:"reports"`
	Aborted   int           `yaml:"aborted"`
	Bundled   int           `yaml:"bundled"`
	Rewritten int           `yaml:"rewritten"`
	Signed    int           `yaml:"signed"`
	Warnings  int           `yaml:"warnings"`
	Result    []resultEntry `yaml:"result"`
}

type resultEntry struct {
	Root     m.Path  `yaml:"root"`
	Stage    m.Stage `yaml:"stage"`
	Report   string  `yaml:"report"`
	Bundled  int     `yaml:"bundled"`
	Warnings int     `yaml:"warnings"`
}

// SaveReport writes the report as <hash of root>.yaml.
func (rs *LocalReportStore) SaveReport(dir m.Path, report m.Report) (m.Path, error) {
	if dir == "" {
		return "", errors.New("reports directory path is required")
	}

	if err := os.MkdirAll(string(dir), 0o755); err != nil {
		return "", fmt.Errorf("create reports directory: %w", err)
	}

	data, err := yaml.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode report for %s: %w", report.Root, err)
	}

	path := filepath.Join(string(dir), rs.computeReportHash(report.Root)+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}

	return m.Path(path), nil
}

// LoadReports decodes every report file in dir. A missing directory holds no
// reports.
func (rs *LocalReportStore) LoadReports(dir m.Path) ([]m.Report, error) {
	files, err := rs.reportFiles(dir)
	if err != nil {
		return nil, err
	}

	reports := make([]m.Report, 0, len(files))

	for _, name := range files {
		report, err := rs.loadReport(filepath.Join(string(dir), name))
		if err != nil {
			return nil, err
		}

		reports = append(reports, report)
	}

	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].Root < reports[j].Root
	})

	return reports, nil
}

// RegenerateIndex writes _index.yaml with totals and one entry per report.
// The index is removed when no reports remain.
func (rs *LocalReportStore) RegenerateIndex(dir m.Path) error {
	files, err := rs.reportFiles(dir)
	if err != nil {
		return err
	}

	indexPath := filepath.Join(string(dir), indexFileName)

	if len(files) == 0 {
		if err := os.Remove(indexPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove index: %w", err)
		}

		return nil
	}

	idx := indexEntry{Result: make([]resultEntry, 0, len(files))}

	for _, name := range files {
		report, err := rs.loadReport(filepath.Join(string(dir), name))
		if err != nil {
			return err
		}

		idx.Reports++
		idx.Bundled += len(report.Bundled)
		idx.Rewritten += len(report.Rewritten)
		idx.Signed += len(report.Signed)
		idx.Warnings += len(report.Warnings)

		if report.Stage == m.StageAborted {
			idx.Aborted++
		}

		idx.Result = append(idx.Result, resultEntry{
			Root:     report.Root,
			Stage:    report.Stage,
			Report:   name,
			Bundled:  len(report.Bundled),
			Warnings: len(report.Warnings),
		})
	}

	sort.SliceStable(idx.Result, func(i, j int) bool {
		return idx.Result[i].Root < idx.Result[j].Root
	})

	data, err := yaml.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	if err := os.WriteFile(indexPath, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	return nil
}

func (rs *LocalReportStore) reportFiles(dir m.Path) ([]string, error) {
	if dir == "" {
		return nil, errors.New("reports directory path is required")
	}

	info, err := os.Stat(string(dir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dir)
	}

	entries, err := os.ReadDir(string(dir))
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == indexFileName || !strings.HasSuffix(name, ".yaml") {
			continue
		}

		files = append(files, name)
	}

	sort.Strings(files)

	return files, nil
}

func (rs *LocalReportStore) loadReport(path string) (m.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return m.Report{}, err
	}

	var report m.Report
	if err := yaml.Unmarshal(data, &report); err != nil {
		return m.Report{}, fmt.Errorf("decode report %s: %w", path, err)
	}

	return report, nil
}

func (rs *LocalReportStore) computeReportHash(root m.Path) string {
	sum := sha256.Sum256([]byte(root))
	return hex.EncodeToString(sum[:8])
}
