package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/snow-ghost/featsel/core"
)

// TopCategories is how many levels of a text column get their own indicator;
// the rest share OtherCategory.
const TopCategories = 10

const OtherCategory = "__other__"

// Prepare builds a numeric dataset from a raw table. An empty target selects
// the last column. Rows without a target value are dropped, missing numeric
// cells are mean-filled and text columns are one-hot encoded.
func Prepare(t *Table, name, target string, task core.TaskKind) (*core.Dataset, error) {
	if t == nil || len(t.Header) == 0 {
		return nil, &core.ContractError{Field: "file", Reason: "file is empty"}
	}
	ti := len(t.Header) - 1
	if target = strings.TrimSpace(target); target != "" {
		if ti = t.Column(target); ti < 0 {
			return nil, &core.ContractError{Field: "target_column", Reason: fmt.Sprintf("target column %q not found", target)}
		}
	}

	rows := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		if !missing(r[ti]) {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return nil, &core.ContractError{Field: "target_column", Reason: "target column has no values"}
	}

	y, classes, err := encodeTarget(rows, ti, task, t.Header[ti])
	if err != nil {
		return nil, err
	}

	var (
		names []string
		cols  [][]float64
	)
	for j, h := range t.Header {
		if j == ti {
			continue
		}
		if vals, ok := numericColumn(rows, j); ok {
			names = append(names, h)
			cols = append(cols, vals)
			continue
		}
		levels, enc := oneHot(rows, j)
		for l, lv := range levels {
			names = append(names, h+"="+lv)
			cols = append(cols, enc[l])
		}
	}
	if len(cols) == 0 {
		return nil, &core.ContractError{Field: "data", Reason: "dataset has no feature columns"}
	}

	X := mat.NewDense(len(rows), len(cols), nil)
	for j, c := range cols {
		X.SetCol(j, c)
	}
	return &core.Dataset{
		Name:    name,
		Columns: names,
		X:       X,
		Y:       y,
		Task:    task,
		Classes: classes,
	}, nil
}

func encodeTarget(rows [][]string, ti int, task core.TaskKind, name string) ([]float64, []string, error) {
	y := make([]float64, len(rows))
	if task == core.Classification {
		labels := make([]string, len(rows))
		uniq := map[string]bool{}
		for i, r := range rows {
			labels[i] = strings.TrimSpace(r[ti])
			uniq[labels[i]] = true
		}
		classes := make([]string, 0, len(uniq))
		for l := range uniq {
			classes = append(classes, l)
		}
		sort.Strings(classes)
		if len(classes) < 2 {
			return nil, nil, &core.ContractError{Field: "target_column", Reason: "classification target needs at least two classes"}
		}
		pos := make(map[string]int, len(classes))
		for i, c := range classes {
			pos[c] = i
		}
		for i, l := range labels {
			y[i] = float64(pos[l])
		}
		return y, classes, nil
	}

	for i, r := range rows {
		v, ok := parseNumber(r[ti])
		if !ok {
			return nil, nil, &core.ContractError{Field: "target_column", Reason: fmt.Sprintf("regression target %q has non-numeric value %q", name, r[ti])}
		}
		y[i] = v
	}
	return y, nil, nil
}

// numericColumn parses column j, mean-filling missing cells. It reports false
// when any present cell is not a number.
func numericColumn(rows [][]string, j int) ([]float64, bool) {
	out := make([]float64, len(rows))
	sum, n := 0.0, 0
	for i, r := range rows {
		if missing(r[j]) {
			out[i] = math.NaN()
			continue
		}
		v, ok := parseNumber(r[j])
		if !ok {
			return nil, false
		}
		out[i] = v
		sum += v
		n++
	}
	fill := 0.0
	if n > 0 {
		fill = sum / float64(n)
	}
	for i, v := range out {
		if math.IsNaN(v) {
			out[i] = fill
		}
	}
	return out, true
}

// oneHot encodes the most frequent levels of column j. Missing cells encode
// as all zeros.
func oneHot(rows [][]string, j int) ([]string, [][]float64) {
	counts := map[string]int{}
	for _, r := range rows {
		if v := strings.TrimSpace(r[j]); !missing(v) {
			counts[v]++
		}
	}
	levels := make([]string, 0, len(counts))
	for l := range counts {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(a, b int) bool {
		if counts[levels[a]] != counts[levels[b]] {
			return counts[levels[a]] > counts[levels[b]]
		}
		return levels[a] < levels[b]
	})
	other := false
	if len(levels) > TopCategories {
		levels = append(levels[:TopCategories:TopCategories], OtherCategory)
		other = true
	}
	pos := make(map[string]int, len(levels))
	for i, l := range levels {
		pos[l] = i
	}

	enc := make([][]float64, len(levels))
	for i := range enc {
		enc[i] = make([]float64, len(rows))
	}
	for i, r := range rows {
		v := strings.TrimSpace(r[j])
		if missing(v) {
			continue
		}
		if p, ok := pos[v]; ok {
			enc[p][i] = 1
		} else if other {
			enc[len(levels)-1][i] = 1
		}
	}
	return levels, enc
}

func missing(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "na", "nan", "null", "none", "n/a":
		return true
	}
	return false
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
