package store

import (
	"errors"
	"time"

	"github.com/snow-ghost/featsel/core"
)

var ErrNotFound = errors.New("run not found")

// RunRecord is the persisted summary of one completed run.
type RunRecord struct {
	ID           string                `json:"id"`
	CreatedAt    time.Time             `json:"created_at"`
	Dataset      string                `json:"dataset"`
	ProblemType  string                `json:"problem_type"`
	ModelType    string                `json:"model_type"`
	GAVersion    string                `json:"ga_version"`
	Metric       string                `json:"metric"`
	Params       core.Params           `json:"params"`
	Selected     []string              `json:"selected"`
	Score        float64               `json:"score"`
	Fitness      float64               `json:"fitness"`
	History      []float64             `json:"history"`
	Generations  int                   `json:"generations"`
	StoppedEarly bool                  `json:"stopped_early"`
	Seed         uint64                `json:"seed"`
	Baselines    []core.BaselineResult `json:"baselines,omitempty"`
	Plots        []string              `json:"plots,omitempty"`
	Duration     time.Duration         `json:"duration"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Dataset     string `json:"dataset,omitempty"`
	ProblemType string `json:"problem_type,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

// ExportFormat represents supported export formats
type ExportFormat string

const (
	ExportFormatJSON ExportFormat = "json"
	ExportFormatCSV  ExportFormat = "csv"
)

// RunStore persists run records. List returns newest first.
type RunStore interface {
	Save(record RunRecord) error
	Get(id string) (RunRecord, error)
	List(filter Filter) ([]RunRecord, error)
	Close() error
}
