package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"energy-mca/internal/analysis"
	"energy-mca/internal/results"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleModel = filepath.Join("..", "..", "examples", "models", "default_timeslice.yaml")

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MCA_SETTINGS", "")
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCommand_WritesTables(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "run", "--model", sampleModel, "--out", dir, "--json", "--log-level", "error")
	require.NoError(t, err)

	var summary analysis.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "default_timeslice", summary.Model)
	assert.Len(t, summary.Years, 3)
	assert.Equal(t, []string{"residential", "power", "gas"}, summary.Order)

	for _, name := range []string{results.CapacityFile, results.PricesFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(filepath.Join(dir, "residential", results.SupplyDir, "2020.csv"))
	assert.NoError(t, err)
}

func TestRunCommand_TextSummary(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "run", "--model", sampleModel, "--out", dir, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "YEAR")
	assert.Contains(t, out, "results written to "+dir)
}

func TestRunCommand_RequiresModel(t *testing.T) {
	_, err := execute(t, "run")
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", "--model", sampleModel)
	require.NoError(t, err)
	assert.Equal(t, "default_timeslice: 3 years, 6 timeslices, 4 technologies\n", out)

	_, err = execute(t, "validate", "--model", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTimeslicesCommand(t *testing.T) {
	out, err := execute(t, "timeslices", "--model", sampleModel)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 7)
	assert.Contains(t, lines[1], "all-year.all-week.night")

	out, err = execute(t, "timeslices", "--model", sampleModel, "--drop", "day")
	require.NoError(t, err)
	assert.Contains(t, out, "all-year.night")
	assert.NotContains(t, out, "all-week")
}
