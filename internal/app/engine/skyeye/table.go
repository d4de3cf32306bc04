package skyeye

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// parseResultTable reads the engine's delimited output: a header row with a
// "time" column plus one column per emitted variable, then one row per
// sample. Requested variables absent from the header are silently omitted;
// partial output is still useful. An empty request selects every emitted
// variable.
func parseResultTable(path string, requested []string) ([]float64, map[string][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	timeIdx := -1
	columns := map[string]int{}
	for i, name := range header {
		if name == "time" {
			timeIdx = i
			continue
		}
		columns[name] = i
	}
	if timeIdx < 0 {
		return nil, nil, fmt.Errorf("result table has no time column")
	}

	selected := map[string]int{}
	if len(requested) == 0 {
		selected = columns
	} else {
		for _, name := range requested {
			if idx, ok := columns[name]; ok {
				selected[name] = idx
			}
		}
	}

	timePoints := []float64{}
	data := make(map[string][]float64, len(selected))
	for name := range selected {
		data[name] = []float64{}
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row: %w", err)
		}

		t, err := strconv.ParseFloat(record[timeIdx], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("parse time value %q: %w", record[timeIdx], err)
		}
		timePoints = append(timePoints, t)

		for name, idx := range selected {
			if idx >= len(record) {
				return nil, nil, fmt.Errorf("row %d is missing column %s", len(timePoints), name)
			}
			v, err := strconv.ParseFloat(record[idx], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("parse %s value %q: %w", name, record[idx], err)
			}
			data[name] = append(data[name], v)
		}
	}

	return timePoints, data, nil
}
