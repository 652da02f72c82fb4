package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/snow-ghost/featsel/core"
)

var ErrNotFound = errors.New("dataset not found")

// Info describes a stored dataset file.
type Info struct {
	Name        string              `json:"name"`
	Filename    string              `json:"filename"`
	Size        int64               `json:"size"`
	Rows        int                 `json:"rows"`
	Columns     int                 `json:"columns"`
	ColumnNames []string            `json:"column_names,omitempty"`
	Sample      []map[string]string `json:"sample_data,omitempty"`
}

// Store keeps uploaded dataset files in one directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("dataset: create upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// Save validates and writes a file, replacing any file of the same name.
func (s *Store) Save(filename string, r io.Reader) (Info, error) {
	name, err := cleanName(filename)
	if err != nil {
		return Info{}, err
	}
	if err := CheckExtension(name); err != nil {
		return Info{}, err
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return Info{}, fmt.Errorf("dataset: read upload: %w", err)
	}
	t, err := Parse(name, data)
	if err != nil {
		return Info{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.dir, name)
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return Info{}, fmt.Errorf("dataset: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return Info{}, fmt.Errorf("dataset: write %s: %w", name, err)
	}
	return describe(name, int64(len(data)), t, 5), nil
}

// List describes every readable dataset, sorted by name.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("dataset: list: %w", err)
	}
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || CheckExtension(e.Name()) != nil {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		t, err := Load(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		info := describe(e.Name(), fi.Size(), t, 0)
		info.ColumnNames = nil
		out = append(out, info)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Filename < out[b].Filename })
	return out, nil
}

// Path resolves a stored file, accepting either the file name or its stem.
func (s *Store) Path(name string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	candidates := []string{clean}
	if filepath.Ext(clean) == "" {
		for _, ext := range Extensions {
			candidates = append(candidates, clean+ext)
		}
	}
	for _, c := range candidates {
		p := filepath.Join(s.dir, c)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	return "", ErrNotFound
}

// Delete removes a stored file.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("dataset: delete %s: %w", filepath.Base(p), err)
	}
	return nil
}

// DefaultName names data whose file name has no usable stem.
const DefaultName = "dataset"

// Stem is a file name without directory and extension. Stems that are not a
// single local path element, such as "" or "..", become DefaultName.
func Stem(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	stem := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" || stem == "." || stem == ".." || !filepath.IsLocal(stem) {
		return DefaultName
	}
	return stem
}

// cleanName rejects anything that could escape the store directory.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") || strings.ContainsRune(name, 0) {
		return "", &core.ContractError{Field: "filename", Reason: "invalid file name"}
	}
	return name, nil
}

func describe(name string, size int64, t *Table, sample int) Info {
	info := Info{
		Name:        Stem(name),
		Filename:    name,
		Size:        size,
		Rows:        len(t.Rows),
		Columns:     len(t.Header),
		ColumnNames: t.Header,
	}
	for i := 0; i < sample && i < len(t.Rows); i++ {
		rec := make(map[string]string, len(t.Header))
		for j, h := range t.Header {
			rec[h] = t.Rows[i][j]
		}
		info.Sample = append(info.Sample, rec)
	}
	return info
}
