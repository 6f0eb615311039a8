package adapter

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	m "github.com/mouse-blink/libpack/internal/model"
)

const recordName = "RECORD"

// ManifestAdapter keeps the per-file hash manifest of a wheel in step with
// the files on disk.
type ManifestAdapter interface {
	// Find lists the manifests under root.
	Find(root m.Path) ([]m.Path, error)
	// Refresh rewrites the manifest so every listed file carries its current
	// hash and size, drops rows for removed files and adds rows for new
	// ones. It reports whether the manifest bytes changed.
	Refresh(root, manifest m.Path) (bool, error)
}

// RecordManifestAdapter maintains *.dist-info/RECORD files.
type RecordManifestAdapter struct{}

// NewRecordManifestAdapter constructs a RecordManifestAdapter.
func NewRecordManifestAdapter() *RecordManifestAdapter {
	return &RecordManifestAdapter{}
}

func isRecordFile(rel string) bool {
	dir, base := path.Split(filepath.ToSlash(rel))
	dir = strings.TrimSuffix(dir, "/")

	return base == recordName && strings.HasSuffix(dir, ".dist-info") && !strings.Contains(dir, "/")
}

// unhashed reports whether rel is listed without a hash: the manifest
// itself and its detached signatures.
func unhashed(rel, manifestRel string) bool {
	return rel == manifestRel || rel == manifestRel+".jws" || rel == manifestRel+".p7s"
}

// Find returns the top-level *.dist-info/RECORD files under root.
func (a *RecordManifestAdapter) Find(root m.Path) ([]m.Path, error) {
	entries, err := os.ReadDir(string(root))
	if err != nil {
		return nil, err
	}

	var out []m.Path

	for _, e := range entries {
		if !e.IsDir() || !strings.HasSuffix(e.Name(), ".dist-info") {
			continue
		}

		p := filepath.Join(string(root), e.Name(), recordName)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			out = append(out, m.Path(p))
		}
	}

	return out, nil
}

// Refresh recomputes the rows of manifest against the tree under root.
func (a *RecordManifestAdapter) Refresh(root, manifest m.Path) (bool, error) {
	original, err := os.ReadFile(string(manifest))
	if err != nil {
		return false, err
	}

	rows, err := csv.NewReader(bytes.NewReader(original)).ReadAll()
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", manifest, err)
	}

	manifestRel, err := relSlash(root, manifest)
	if err != nil {
		return false, err
	}

	present, err := listFiles(root)
	if err != nil {
		return false, err
	}

	seen := make(map[string]bool, len(rows))
	order := make([]string, 0, len(present))

	for _, row := range rows {
		if len(row) == 0 || row[0] == "" || seen[row[0]] {
			continue
		}

		if _, ok := present[row[0]]; !ok {
			continue
		}

		seen[row[0]] = true
		order = append(order, row[0])
	}

	var added []string

	for rel := range present {
		if !seen[rel] {
			added = append(added, rel)
		}
	}

	sort.Strings(added)
	order = append(order, added...)

	var buf bytes.Buffer

	w := csv.NewWriter(&buf)

	for _, rel := range order {
		if rel == manifestRel {
			continue
		}

		record := []string{rel, "", ""}

		if !unhashed(rel, manifestRel) {
			digest, size, err := recordDigest(present[rel])
			if err != nil {
				return false, err
			}

			record[1] = digest
			record[2] = strconv.FormatInt(size, 10)
		}

		if err := w.Write(record); err != nil {
			return false, err
		}
	}

	if err := w.Write([]string{manifestRel, "", ""}); err != nil {
		return false, err
	}

	w.Flush()

	if err := w.Error(); err != nil {
		return false, err
	}

	if bytes.Equal(buf.Bytes(), original) {
		return false, nil
	}

	if err := writeFileAtomic(manifest, buf.Bytes()); err != nil {
		return false, err
	}

	return true, nil
}

// recordDigest returns the "sha256=<urlsafe base64, unpadded>" digest and
// the size of the file at p.
func recordDigest(p string) (string, int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", 0, err
	}

	defer func() { _ = f.Close() }()

	h := sha256.New()

	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}

	return "sha256=" + base64.RawURLEncoding.EncodeToString(h.Sum(nil)), size, nil
}

func relSlash(root, p m.Path) (string, error) {
	rel, err := filepath.Rel(string(root), string(p))
	if err != nil {
		return "", err
	}

	return filepath.ToSlash(rel), nil
}

// listFiles maps the slash-separated relative path of every regular file
// and symlink under root to its absolute path.
func listFiles(root m.Path) (map[string]string, error) {
	out := make(map[string]string)

	err := filepath.Walk(string(root), func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		rel, err := relSlash(root, m.Path(p))
		if err != nil {
			return err
		}

		out[rel] = p

		return nil
	})

	return out, err
}
