package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// Kind selects the content of a results file.
type Kind string

const (
	KindMeasures      Kind = "measures"      // one row of summary measures per segment
	KindDistributions Kind = "distributions" // one row per segment, asset and occupancy level
)

// ParseKind validates a results kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindMeasures, KindDistributions:
		return k, nil
	}
	return "", fmt.Errorf("results: unknown output kind %q (want %s or %s)", s, KindMeasures, KindDistributions)
}

// MeasuresHeader returns the column names of the measures file for n assets.
func MeasuresHeader(n int) []string {
	header := []string{"segment"}
	for i := 0; i < n; i++ {
		header = append(header, fmt.Sprintf("meanAsset%d", i))
	}
	for i := 0; i < n; i++ {
		header = append(header, fmt.Sprintf("blockProbAsset%d", i))
	}
	for i := 0; i < n; i++ {
		header = append(header, fmt.Sprintf("capacityAsset%d", i))
	}
	for i := 0; i < n; i++ {
		for _, p := range Percentiles {
			header = append(header, fmt.Sprintf("percentileAsset%d_%d", i, int(math.Round(p*100))))
		}
	}
	return append(header, "runtime(s)")
}

// WriteMeasures writes the header and one row per segment.
func (a *Aggregated) WriteMeasures(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(MeasuresHeader(a.assets)); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, m := range a.rows {
		row := []string{strconv.Itoa(m.Segment)}
		for _, v := range m.Mean {
			row = append(row, formatFloat(v))
		}
		for _, v := range m.Blocking {
			row = append(row, formatFloat(v))
		}
		for _, c := range m.Capacity {
			row = append(row, strconv.Itoa(c))
		}
		for _, levels := range m.Percentiles {
			for _, l := range levels {
				row = append(row, strconv.Itoa(l))
			}
		}
		row = append(row, formatFloat(m.Runtime.Seconds()))
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteDistributions writes the marginal occupancy distributions in long form.
func (a *Aggregated) WriteDistributions(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"segment", "asset", "occupancy", "probability"}); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, m := range a.rows {
		for i, dist := range m.Marginals {
			for level, p := range dist {
				row := []string{strconv.Itoa(m.Segment), strconv.Itoa(i), strconv.Itoa(level), formatFloat(p)}
				if err := writer.Write(row); err != nil {
					return fmt.Errorf("writing CSV row: %w", err)
				}
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFile writes the results of the given kind to path, creating parent
// directories as needed.
func (a *Aggregated) WriteFile(path string, kind Kind) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating results directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating results file: %w", err)
	}
	switch kind {
	case KindMeasures:
		err = a.WriteMeasures(file)
	case KindDistributions:
		err = a.WriteDistributions(file)
	default:
		err = fmt.Errorf("results: unknown output kind %q", kind)
	}
	if err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
