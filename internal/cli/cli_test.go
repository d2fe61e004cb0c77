package cli

import (
	"bytes"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/models"
)

const countriesPayload = `[
	{"country":"Aland","cases":100,"deaths":10,"recovered":50,"active":40,"critical":0,"countryInfo":{"lat":60.1,"long":19.9}},
	{"country":"Borduria","cases":0,"deaths":0,"recovered":0,"active":0,"critical":0,"countryInfo":{"lat":45,"long":20}}
]`

func setupEnv(t *testing.T) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/countries" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(countriesPayload))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Setenv("COVID_SOURCE_BASE_URL", srv.URL)
	t.Setenv("COVID_AUDIT_DIR", filepath.Join(dir, "raw_data"))
	t.Setenv("COVID_DB_DRIVER", "sqlite")
	t.Setenv("COVID_DB_DSN", "file:"+filepath.Join(dir, "covid.db"))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestHelpListsCommands(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"run", "step", "migrate", "purge", "latest", "runs"} {
		require.Contains(t, out, name)
	}

	out, err = execute(t, "migrate", "--help")
	require.NoError(t, err)
	require.Contains(t, out, "Run migrations")
}

func TestRunThenLatest(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "run")
	require.NoError(t, err)
	require.Contains(t, out, "loaded 2 rows (2 extracted)")

	entries, err := os.ReadDir(os.Getenv("COVID_AUDIT_DIR"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, strings.HasPrefix(entries[0].Name(), "covid_countries_"))

	out, err = execute(t, "latest")
	require.NoError(t, err)
	require.Contains(t, out, "Aland")
	require.Contains(t, out, "10.00")
	require.Contains(t, out, "Borduria")

	out, err = execute(t, "runs", "--limit", "5")
	require.NoError(t, err)
	require.Contains(t, out, "succeeded")
}

func TestStepsShareRunThroughDatabase(t *testing.T) {
	setupEnv(t)

	for _, step := range []string{"extract", "process", "validate", "store"} {
		out, err := execute(t, "step", step, "--run-id", "manual-1")
		require.NoError(t, err, step)
		require.Contains(t, out, "for run manual-1 done")
	}

	out, err := execute(t, "latest", "--snapshot")
	require.NoError(t, err)
	require.Contains(t, out, "Aland")

	out, err = execute(t, "runs")
	require.NoError(t, err)
	require.Contains(t, out, "manual-1")

	_, err = execute(t, "purge", "--run-id", "manual-1")
	require.NoError(t, err)
	_, err = execute(t, "step", "store", "--run-id", "manual-1")
	require.ErrorContains(t, err, "no payload pushed")
}

func TestStepRejectsUnknownStep(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "step", "publish", "--run-id", "r1")
	require.ErrorContains(t, err, "unknown step")
}

func TestStepRequiresRunID(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "step", "extract")
	require.Error(t, err)
}

func TestMigrate(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "migrate")
	require.NoError(t, err)
	_, err = execute(t, "migrate")
	require.NoError(t, err)
}

func TestPrintStatsUndefinedRate(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, []models.DailyStat{{
		Country:        "Nowhere",
		MortalityRate:  models.Rate(math.NaN()).Nullable(),
		RecoveryRate:   models.Rate(12.5).Nullable(),
		ActiveRate:     models.Rate(87.5).Nullable(),
		ExtractionDate: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}})

	out := buf.String()
	require.Contains(t, out, "Nowhere")
	require.Contains(t, out, " - ")
	require.Contains(t, out, "12.50")
	require.Contains(t, out, "2024-03-01T10:00:00Z")
}
