package store

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Config selects the backend: "memory" (default) or "sqlite".
type Config struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Manager fronts a RunStore and adds export.
type Manager struct {
	RunStore
}

func NewManager(config Config) (*Manager, error) {
	switch strings.ToLower(config.Driver) {
	case "", "memory":
		return &Manager{RunStore: NewMemoryStore()}, nil
	case "sqlite", "sqlite3":
		dsn := config.DSN
		if dsn == "" {
			dsn = "featsel.db"
		}
		s, err := NewSQLiteStore(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite store: %w", err)
		}
		return &Manager{RunStore: s}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", config.Driver)
}

// Export renders the filtered records as JSON or as a flat CSV summary.
func (m *Manager) Export(filter Filter, format ExportFormat) ([]byte, error) {
	records, err := m.List(filter)
	if err != nil {
		return nil, err
	}
	switch format {
	case ExportFormatJSON, "":
		return json.MarshalIndent(records, "", "  ")
	case ExportFormatCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		w.Write([]string{"id", "created_at", "dataset", "problem_type", "model_type", "ga_version",
			"metric", "score", "selected", "generations", "stopped_early", "seed", "duration_s"})
		for _, r := range records {
			w.Write([]string{
				r.ID,
				r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
				r.Dataset,
				r.ProblemType,
				r.ModelType,
				r.GAVersion,
				r.Metric,
				strconv.FormatFloat(r.Score, 'g', -1, 64),
				strings.Join(r.Selected, ";"),
				strconv.Itoa(r.Generations),
				strconv.FormatBool(r.StoppedEarly),
				strconv.FormatUint(r.Seed, 10),
				strconv.FormatFloat(r.Duration.Seconds(), 'f', 3, 64),
			})
		}
		w.Flush()
		return buf.Bytes(), w.Error()
	}
	return nil, fmt.Errorf("unsupported export format: %s", format)
}
