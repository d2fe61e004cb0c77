package diseasesh

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/config"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/models"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/ratelimit"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/stageerr"
)

const countriesPayload = `[
  {"updated": 1709251200000, "country": "  Afghanistan ", "countryInfo": {"_id": 4, "iso2": "AF", "lat": 33, "long": 65, "flag": "af.png"},
   "cases": 232000, "deaths": 7900, "recovered": 210000, "active": 14100, "critical": 1, "tests": 1300000,
   "population": 41000000, "continent": "Asia", "todayCases": 0},
  {"country": "Nowhere", "cases": 10.9, "deaths": null, "recovered": 2, "active": 8, "critical": 0}
]`

var testStart = time.Date(2024, 3, 1, 9, 30, 15, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSource(baseURL string) config.SourceConfig {
	cfg := config.Default().Source
	cfg.BaseURL = baseURL
	cfg.RateLimit = ratelimit.Config{Strategy: ratelimit.StrategyNone}
	return cfg
}

func TestClientFetch(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"cases": 1}`))
	}))
	defer srv.Close()

	c := NewClient(testSource(srv.URL), ratelimit.Nop{})

	body, err := c.Fetch(context.Background(), KindGlobal)
	require.NoError(t, err)
	require.Equal(t, "/all", gotPath)
	require.JSONEq(t, `{"cases": 1}`, string(body))
}

func TestClientFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	c := NewClient(testSource(srv.URL), ratelimit.Nop{})

	_, err := c.Fetch(context.Background(), KindCountries)
	require.True(t, stageerr.Is(err, stageerr.KindTransport), "got %v", err)
	require.ErrorContains(t, err, "502")

	_, err = c.Fetch(context.Background(), Kind("vaccines"))
	require.True(t, stageerr.Is(err, stageerr.KindConfig), "got %v", err)

	srv.Close()
	_, err = c.Fetch(context.Background(), KindCountries)
	require.True(t, stageerr.Is(err, stageerr.KindTransport), "got %v", err)
	require.True(t, stageerr.Retryable(err))
}

func TestAuditStoreNeverOverwrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "raw_data")
	store := NewAuditStore(dir, clockwork.NewFakeClockAt(testStart))

	first, err := store.Save(KindCountries, []byte(`[1]`))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "covid_countries_20240301_093015.json"), first)

	second, err := store.Save(KindCountries, []byte(`[2]`))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "covid_countries_20240301_093015_1.json"), second)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	require.Equal(t, `[1]`, string(data))
}

func TestAuditStoreFailureIsDistinct(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	store := NewAuditStore(filepath.Join(blocker, "raw_data"), clockwork.NewFakeClock())
	_, err := store.Save(KindCountries, []byte(`{}`))
	require.True(t, stageerr.Is(err, stageerr.KindAudit), "got %v", err)
}

func TestTransformCountries(t *testing.T) {
	tr := NewTransformer("disease.sh API", false, clockwork.NewFakeClockAt(testStart))

	table, err := tr.Transform([]byte(countriesPayload))
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	require.Equal(t, models.Columns{
		models.ColCountry, models.ColConfirmed, models.ColDeaths, models.ColRecovered,
		models.ColActive, models.ColCritical, models.ColTests, models.ColPopulation,
		models.ColContinent, models.ColLatitude, models.ColLongitude,
		models.ColExtractionDate, models.ColDataSource,
	}, table.Columns)

	af := table.Rows[0]
	require.Equal(t, "  Afghanistan ", *af.Country)
	require.EqualValues(t, 232000, *af.Confirmed)
	require.EqualValues(t, 33, *af.Latitude)
	require.EqualValues(t, 65, *af.Longitude)
	require.Equal(t, "Asia", *af.Continent)
	require.Equal(t, "disease.sh API", af.DataSource)

	nw := table.Rows[1]
	require.EqualValues(t, 10, *nw.Confirmed)
	require.Nil(t, nw.Deaths)
	require.Nil(t, nw.Latitude)

	for _, r := range table.Rows {
		require.Equal(t, testStart, r.ExtractionDate)
	}
}

func TestTransformSingleObject(t *testing.T) {
	tr := NewTransformer("disease.sh API", false, clockwork.NewFakeClockAt(testStart))

	table, err := tr.Transform([]byte(`{"cases": 700000000, "deaths": 7000000, "population": 8000000000}`))
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	require.Equal(t, models.Columns{
		models.ColConfirmed, models.ColDeaths, models.ColPopulation,
		models.ColExtractionDate, models.ColDataSource,
	}, table.Columns)
	require.Nil(t, table.Rows[0].Country)
}

func TestTransformStrict(t *testing.T) {
	tr := NewTransformer("disease.sh API", true, clockwork.NewFakeClockAt(testStart))

	_, err := tr.Transform([]byte(countriesPayload))
	require.True(t, stageerr.Is(err, stageerr.KindTransform), "got %v", err)
	require.ErrorContains(t, err, "object 1")
	require.ErrorContains(t, err, "continent")
}

func TestTransformMalformed(t *testing.T) {
	tr := NewTransformer("disease.sh API", false, clockwork.NewFakeClock())

	for _, payload := range []string{
		`not json`,
		`42`,
		`[1, 2]`,
		`[{"cases": "many"}]`,
		`[{"country":"A","cases":1}] trailing`,
		`{"country":"A"} {"country":"B"}`,
	} {
		_, err := tr.Transform([]byte(payload))
		require.True(t, stageerr.Is(err, stageerr.KindTransform), "payload %s: got %v", payload, err)
		require.False(t, stageerr.Retryable(err))
	}

	table, err := tr.Transform([]byte("[{\"country\":\"A\",\"cases\":1}]\n  "))
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
}

func TestExtractAndTransform(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/countries" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(countriesPayload))
	}))
	defer srv.Close()

	dir := t.TempDir()
	ex := NewExtractor(testSource(srv.URL), config.AuditConfig{Dir: dir}, clockwork.NewFakeClockAt(testStart), testLogger())

	table, err := ex.ExtractAndTransform(context.Background(), KindCountries)
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	raw, err := os.ReadFile(filepath.Join(dir, "covid_countries_20240301_093015.json"))
	require.NoError(t, err)
	require.Equal(t, countriesPayload, string(raw))
}

func TestExtractAuditSurvivesTransformFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`"unexpected"`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	ex := NewExtractor(testSource(srv.URL), config.AuditConfig{Dir: dir}, clockwork.NewFakeClockAt(testStart), testLogger())

	_, err := ex.ExtractAndTransform(context.Background(), KindCountries)
	require.True(t, stageerr.Is(err, stageerr.KindTransform), "got %v", err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
