// Package dataset turns uploaded tabular files into model-ready datasets.
package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/snow-ghost/featsel/core"
)

// MaxFileSize is the largest accepted upload or download.
const MaxFileSize = 50 << 20

// Extensions accepted for datasets.
var Extensions = []string{".csv", ".xlsx"}

var ErrEmpty = errors.New("dataset: file has no data rows")

// Table is a raw, untyped table with a header row.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of name in the header, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// CheckExtension rejects file names that are not a supported format.
func CheckExtension(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return nil
		}
	}
	return &core.ContractError{Field: "file", Reason: "only .csv and .xlsx files are supported"}
}

// Parse decodes data according to the extension of name.
func Parse(name string, data []byte) (*Table, error) {
	if err := CheckExtension(name); err != nil {
		return nil, err
	}
	if len(data) > MaxFileSize {
		return nil, &core.ContractError{Field: "file", Reason: "file too large, maximum size is 50MB"}
	}
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return ReadXLSX(bytes.NewReader(data))
	}
	return ReadCSV(bytes.NewReader(data))
}

// Load reads and parses a file from disk.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", filepath.Base(path), err)
	}
	return Parse(path, data)
}

// ReadCSV parses comma-separated text with a header row.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, &core.ContractError{Field: "file", Reason: fmt.Sprintf("error reading CSV: %v", err)}
	}
	return fromRecords(records)
}

// ReadXLSX parses the first sheet of a workbook; its first row is the header.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &core.ContractError{Field: "file", Reason: fmt.Sprintf("error reading workbook: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &core.ContractError{Field: "file", Reason: "workbook has no sheets"}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("dataset: read sheet %s: %w", sheets[0], err)
	}
	return fromRecords(rows)
}

func fromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, &core.ContractError{Field: "file", Reason: "file is empty"}
	}
	header := make([]string, len(records[0]))
	seen := make(map[string]int, len(header))
	for i, h := range records[0] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("column_%d", i)
		}
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = fmt.Sprintf("%s.%d", h, n)
		} else {
			seen[h] = 1
		}
		header[i] = h
	}

	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := make([]string, len(header))
		copy(row, rec)
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, &core.ContractError{Field: "file", Reason: ErrEmpty.Error()}
	}
	return &Table{Header: header, Rows: rows}, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
