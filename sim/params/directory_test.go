package params

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tranreloc/tranreloc/sim"
)

func referenceScenario() *Scenario {
	return &Scenario{
		Occupied: []int{0, 0},
		Segments: []SegmentSpec{{
			Capacity:     []int{3, 2},
			ArrivalRates: []float64{3.2, 2.1},
			Distributions: [][]PhaseSpec{
				{
					{Initial: []float64{0.75, 0.25}, Generator: [][]float64{{-2, 1}, {3, -5}}},
					{Initial: []float64{0.1, 0.9}, Generator: [][]float64{{-3, 2}, {0.5, -8}}},
				},
				{
					{Initial: []float64{0.1, 0.9}, Generator: [][]float64{{-10, 1.5}, {8, -9}}},
					{Initial: []float64{0.2, 0.8}, Generator: [][]float64{{-3, 2}, {8, -8.1}}},
				},
			},
		}},
		Relocation: RelocationSpec{
			Routes: []RouteSpec{
				{From: 0, To: 1, Dists: []int{0, 1}, Probs: []float64{0.05, 0.95}},
				{From: 1, To: 0, Dists: []int{1}, Probs: []float64{1}},
			},
			Rules: []RuleSpec{
				{Probability: 1, From: 0, To: 1, Blocked: []int{0}},
				{Probability: 1, From: 1, To: 0, Blocked: []int{1}},
			},
		},
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestReadDirectory_HandWrittenLayout(t *testing.T) {
	// GIVEN a parameter directory with one asset over two segments
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, NumberOfAssetsFile), "1\n")
	writeFile(t, filepath.Join(dir, ArrivalRatesFile), "asset0\n2.5\n4\n")
	writeFile(t, filepath.Join(dir, CapacityFile), "asset0\n3\n5\n")
	writeFile(t, filepath.Join(dir, CurrentlyOccupiedFile), "asset0\n1\n")
	writeFile(t, filepath.Join(dir, NumberOfAssetDistsFile), "asset0\n1\n")
	writeFile(t, PhasesPath(dir, 0, 0, 0), "0.6  -2 1\n0.4 0.5 -1\n\n")
	writeFile(t, PhasesPath(dir, 1, 0, 0), "1 -3\n")

	// WHEN read
	sc, err := ReadDirectory(dir)

	// THEN every file is reflected in the scenario
	require.NoError(t, err)
	assert.Equal(t, []int{1}, sc.Occupied)
	require.Len(t, sc.Segments, 2)
	assert.Equal(t, []int{3}, sc.Segments[0].Capacity)
	assert.Equal(t, []float64{4}, sc.Segments[1].ArrivalRates)
	assert.Equal(t, PhaseSpec{Initial: []float64{0.6, 0.4}, Generator: [][]float64{{-2, 1}, {0.5, -1}}},
		sc.Segments[0].Distributions[0][0])
	assert.Empty(t, sc.Relocation.Rules)

	// AND the system builds
	sys, err := sc.System()
	require.NoError(t, err)
	assert.Equal(t, 1, sys.Assets())
	assert.Equal(t, 5, sys.Segments[1].Capacity[0])
}

func TestWriteDirectory_RoundTrips(t *testing.T) {
	// GIVEN the reference scenario written in the directory layout
	dir := filepath.Join(t.TempDir(), "Parameters")
	require.NoError(t, WriteDirectory(dir, referenceScenario()))

	// WHEN read back
	sc, err := Read(dir)

	// THEN the scenario is unchanged
	require.NoError(t, err)
	assert.Equal(t, referenceScenario(), sc)
}

func TestReadDirectory_MissingFile_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteDirectory(dir, referenceScenario()))
	require.NoError(t, os.Remove(PhasesPath(dir, 0, 1, 1)))

	_, err := ReadDirectory(dir)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadDirectory_InconsistentSegments_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteDirectory(dir, referenceScenario()))
	writeFile(t, filepath.Join(dir, CapacityFile), "asset0,asset1\n3,2\n1,1\n")

	_, err := ReadDirectory(dir)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestScenario_System_BuildsRelocationMap(t *testing.T) {
	sys, err := referenceScenario().System()
	require.NoError(t, err)
	assert.True(t, sys.Relocation.CanRelocate(0, 1))
	assert.Equal(t, 1.0, sys.Relocation.Probability(0, 1, sim.NewBlockedSet(0)))
	assert.Equal(t, []int{1}, sys.Relocation.Route(1, 0).Dists)
}

func TestScenario_System_InvalidPhaseType_ReturnsError(t *testing.T) {
	sc := referenceScenario()
	sc.Segments[0].Distributions[1][0].Initial = []float64{0.5, 0.6}
	_, err := sc.System()
	assert.ErrorIs(t, err, sim.ErrInvalidPhaseType)
	assert.True(t, strings.Contains(err.Error(), "asset 1"))
}
