package params

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Files of a parameter directory.
const (
	NumberOfAssetsFile     = "NumberOfAssets"     // single value, no header
	ArrivalRatesFile       = "ArrivalRates"       // header, one row per segment, one column per asset
	CapacityFile           = "Capacity"           // header, one row per segment, one column per asset
	CurrentlyOccupiedFile  = "CurrentlyOccupied"  // header, one row
	NumberOfAssetDistsFile = "NumberOfAssetDists" // header, one row
	RelocationRulesFile    = "RelocationRules"
	RentalTimeDir          = "RentalTime"
)

// PhasesPath returns the path of the phases file of distribution d of asset a in segment t.
// Each non-empty line holds a phase's entry probability followed by its generator row.
func PhasesPath(dir string, t, a, d int) string {
	return filepath.Join(dir, RentalTimeDir, fmt.Sprintf("time%d", t), fmt.Sprintf("asset%d", a),
		fmt.Sprintf("distribution%d", d), "phases")
}

// ReadDirectory reads a scenario from a parameter directory.
func ReadDirectory(dir string) (*Scenario, error) {
	nRows, err := readCSV(filepath.Join(dir, NumberOfAssetsFile), false)
	if err != nil {
		return nil, err
	}
	if len(nRows) == 0 || len(nRows[0]) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrMalformed, NumberOfAssetsFile)
	}
	nAssets, err := toInt(nRows[0][0])
	if err != nil || nAssets < 1 {
		return nil, fmt.Errorf("%w: %s: invalid asset count %v", ErrMalformed, NumberOfAssetsFile, nRows[0][0])
	}

	rates, err := readCSV(filepath.Join(dir, ArrivalRatesFile), true)
	if err != nil {
		return nil, err
	}
	caps, err := readCSV(filepath.Join(dir, CapacityFile), true)
	if err != nil {
		return nil, err
	}
	if len(rates) == 0 || len(caps) != len(rates) {
		return nil, fmt.Errorf("%w: %s has %d segments, %s has %d",
			ErrMalformed, ArrivalRatesFile, len(rates), CapacityFile, len(caps))
	}
	occupied, err := readIntRow(filepath.Join(dir, CurrentlyOccupiedFile), nAssets)
	if err != nil {
		return nil, err
	}
	distCounts, err := readIntRow(filepath.Join(dir, NumberOfAssetDistsFile), nAssets)
	if err != nil {
		return nil, err
	}

	sc := &Scenario{Occupied: occupied, Segments: make([]SegmentSpec, len(rates))}
	for t := range rates {
		if len(rates[t]) != nAssets || len(caps[t]) != nAssets {
			return nil, fmt.Errorf("%w: segment %d does not list %d assets", ErrMalformed, t, nAssets)
		}
		seg := SegmentSpec{
			Capacity:      make([]int, nAssets),
			ArrivalRates:  rates[t],
			Distributions: make([][]PhaseSpec, nAssets),
		}
		for a := 0; a < nAssets; a++ {
			if seg.Capacity[a], err = toInt(caps[t][a]); err != nil {
				return nil, fmt.Errorf("%w: %s segment %d asset %d: %v", ErrMalformed, CapacityFile, t, a, err)
			}
			for d := 0; d < distCounts[a]; d++ {
				ps, err := readPhases(PhasesPath(dir, t, a, d))
				if err != nil {
					return nil, err
				}
				seg.Distributions[a] = append(seg.Distributions[a], ps)
			}
		}
		sc.Segments[t] = seg
	}

	f, err := os.Open(filepath.Join(dir, RelocationRulesFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		// No relocation.
	case err != nil:
		return nil, fmt.Errorf("reading relocation rules: %w", err)
	default:
		defer f.Close()
		if sc.Relocation, err = ParseRelocationRules(f); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

// readCSV reads a comma-separated numeric file, optionally skipping a header row.
func readCSV(path string, header bool) ([][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading parameters: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	if header {
		if _, err := reader.Read(); err != nil {
			return nil, fmt.Errorf("%w: %s: missing header: %v", ErrMalformed, filepath.Base(path), err)
		}
	}
	var rows [][]float64
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, filepath.Base(path), err)
		}
		row := make([]float64, 0, len(record))
		for _, field := range record {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s row %d: %v", ErrMalformed, filepath.Base(path), len(rows), err)
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// readIntRow reads the single data row of a headed file with n integer entries.
func readIntRow(path string, n int) ([]int, error) {
	rows, err := readCSV(path, true)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0]) != n {
		return nil, fmt.Errorf("%w: %s does not list %d assets", ErrMalformed, filepath.Base(path), n)
	}
	out := make([]int, n)
	for i, v := range rows[0] {
		if out[i], err = toInt(v); err != nil {
			return nil, fmt.Errorf("%w: %s entry %d: %v", ErrMalformed, filepath.Base(path), i, err)
		}
	}
	return out, nil
}

// readPhases reads a phases file.
func readPhases(path string) (PhaseSpec, error) {
	var ps PhaseSpec
	file, err := os.Open(path)
	if err != nil {
		return ps, fmt.Errorf("reading rental time: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		row := make([]float64, len(fields))
		for i, f := range fields {
			if row[i], err = strconv.ParseFloat(f, 64); err != nil {
				return ps, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
			}
		}
		ps.Initial = append(ps.Initial, row[0])
		ps.Generator = append(ps.Generator, row[1:])
	}
	if err := scanner.Err(); err != nil {
		return ps, fmt.Errorf("reading rental time: %w", err)
	}
	if len(ps.Initial) == 0 {
		return ps, fmt.Errorf("%w: %s has no phases", ErrMalformed, path)
	}
	return ps, nil
}

func toInt(v float64) (int, error) {
	if v != float64(int(v)) {
		return 0, fmt.Errorf("%v is not an integer", v)
	}
	return int(v), nil
}

// WriteDirectory writes sc in the parameter directory layout under dir.
func WriteDirectory(dir string, sc *Scenario) error {
	if len(sc.Segments) == 0 {
		return fmt.Errorf("%w: no segments", ErrMalformed)
	}
	n := len(sc.Occupied)
	header := make([]string, n)
	for i := range header {
		header[i] = fmt.Sprintf("asset%d", i)
	}
	counts := sc.DistCounts()

	files := map[string][][]string{
		NumberOfAssetsFile:     {{strconv.Itoa(n)}},
		CurrentlyOccupiedFile:  {header, intStrings(sc.Occupied)},
		NumberOfAssetDistsFile: {header, intStrings(counts)},
		ArrivalRatesFile:       {header},
		CapacityFile:           {header},
	}
	for _, seg := range sc.Segments {
		files[ArrivalRatesFile] = append(files[ArrivalRatesFile], floatStrings(seg.ArrivalRates))
		files[CapacityFile] = append(files[CapacityFile], intStrings(seg.Capacity))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, records := range files {
		if err := writeCSV(filepath.Join(dir, name), records); err != nil {
			return err
		}
	}

	for t, seg := range sc.Segments {
		for a, dists := range seg.Distributions {
			for d, ps := range dists {
				if err := writePhases(PhasesPath(dir, t, a, d), ps); err != nil {
					return err
				}
			}
		}
	}

	f, err := os.Create(filepath.Join(dir, RelocationRulesFile))
	if err != nil {
		return err
	}
	if err := FormatRelocationRules(f, sc.Relocation); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeCSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writePhases(path string, ps PhaseSpec) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var b strings.Builder
	for i, a := range ps.Initial {
		b.WriteString(strconv.FormatFloat(a, 'g', -1, 64))
		for _, v := range ps.Generator[i] {
			b.WriteByte(' ')
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func intStrings(v []int) []string {
	out := make([]string, len(v))
	for i, n := range v {
		out[i] = strconv.Itoa(n)
	}
	return out
}

func floatStrings(v []float64) []string {
	out := make([]string, len(v))
	for i, f := range v {
		out[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return out
}
