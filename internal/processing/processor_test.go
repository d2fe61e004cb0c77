package processing

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/models"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/stageerr"
)

var runAt = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func normalized(country string, confirmed, deaths, recovered, active, critical int64) models.NormalizedRecord {
	return models.NormalizedRecord{
		Country:        ptr(country),
		Confirmed:      ptr(confirmed),
		Deaths:         ptr(deaths),
		Recovered:      ptr(recovered),
		Active:         ptr(active),
		Critical:       ptr(critical),
		ExtractionDate: runAt,
		DataSource:     "disease.sh API",
	}
}

func normalizedTable(rows ...models.NormalizedRecord) models.Table[models.NormalizedRecord] {
	return models.Table[models.NormalizedRecord]{
		Columns: models.Columns{models.ColCountry}.With(models.CountColumns...).With(models.ColExtractionDate, models.ColDataSource),
		Rows:    rows,
	}
}

func TestCleanFillsAndTrims(t *testing.T) {
	in := normalizedTable(models.NormalizedRecord{
		Country:        ptr("  France  "),
		Confirmed:      ptr(int64(10)),
		ExtractionDate: runAt,
	})

	out, err := Clean(in)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())

	r := out.Rows[0]
	require.Equal(t, "France", r.Country)
	require.EqualValues(t, 10, r.Confirmed)
	require.Zero(t, r.Deaths)
	require.Zero(t, r.Recovered)
	require.Zero(t, r.Active)
	require.Zero(t, r.Critical)
	require.Equal(t, runAt, r.ExtractionDate)

	// Input untouched.
	require.Equal(t, "  France  ", *in.Rows[0].Country)
	require.Nil(t, in.Rows[0].Deaths)
}

func TestCleanMissingColumns(t *testing.T) {
	in := models.Table[models.NormalizedRecord]{
		Columns: models.Columns{models.ColConfirmed, models.ColDeaths, models.ColExtractionDate},
		Rows:    []models.NormalizedRecord{{Confirmed: ptr(int64(1))}},
	}

	_, err := Clean(in)
	require.True(t, stageerr.Is(err, stageerr.KindSchema), "got %v", err)
	require.ErrorContains(t, err, "country")
	require.ErrorContains(t, err, "critical")
}

func TestCalculateMetrics(t *testing.T) {
	cleaned, err := Clean(normalizedTable(
		normalized("A", 3, 1, 1, 1, 0),
		normalized("B", 0, 0, 0, 0, 0),
		normalized("C", 8, 1, 3, 4, 0),
	))
	require.NoError(t, err)

	out := CalculateMetrics(cleaned)
	require.True(t, out.Columns.Has(models.ColMortalityRate))
	require.False(t, cleaned.Columns.Has(models.ColMortalityRate))

	require.InDelta(t, 33.33, float64(out.Rows[0].MortalityRate), 1e-9)

	require.False(t, out.Rows[1].MortalityRate.Defined())
	require.False(t, out.Rows[1].RecoveryRate.Defined())
	require.False(t, out.Rows[1].ActiveRate.Defined())

	// 12.5 stays exact, 37.5 and 50 too.
	require.InDelta(t, 12.5, float64(out.Rows[2].MortalityRate), 1e-9)
	require.InDelta(t, 37.5, float64(out.Rows[2].RecoveryRate), 1e-9)
	require.InDelta(t, 50, float64(out.Rows[2].ActiveRate), 1e-9)

	// Cleaned rows keep undefined rates until metrics run.
	require.False(t, cleaned.Rows[0].MortalityRate.Defined())
}

func TestPercentageRounding(t *testing.T) {
	require.InDelta(t, 66.67, float64(percentage(2, 3)), 1e-9)
	require.InDelta(t, 14.29, float64(percentage(1, 7)), 1e-9)
	require.InDelta(t, 100, float64(percentage(5, 5)), 1e-9)
	require.False(t, percentage(5, 0).Defined())
}

func TestProcessAveragesPerRowRates(t *testing.T) {
	p := NewProcessor(slog.New(slog.NewTextHandler(io.Discard, nil)))

	out, err := p.Process(normalizedTable(
		normalized("A", 100, 10, 50, 40, 0),
		normalized("A", 50, 5, 20, 25, 0),
	))
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	require.Equal(t, models.AggregatedColumns, out.Columns)

	a := out.Rows[0]
	require.Equal(t, "A", a.Country)
	require.EqualValues(t, 150, a.Confirmed)
	require.EqualValues(t, 15, a.Deaths)
	require.EqualValues(t, 70, a.Recovered)
	require.EqualValues(t, 65, a.Active)
	require.EqualValues(t, 0, a.Critical)
	require.Equal(t, runAt, a.ExtractionDate)

	require.InDelta(t, 10, float64(a.MortalityRate), 1e-9)
	// Mean of 50 and 40, not 70/150.
	require.InDelta(t, 45, float64(a.RecoveryRate), 1e-9)
	// Mean of 40 and 50, not 65/150.
	require.InDelta(t, 45, float64(a.ActiveRate), 1e-9)
}

func TestAggregateSkipsUndefinedRates(t *testing.T) {
	cleaned, err := Clean(normalizedTable(
		normalized("B", 0, 0, 0, 0, 0),
		normalized("B", 10, 1, 2, 7, 1),
		normalized("Z", 0, 0, 0, 0, 0),
	))
	require.NoError(t, err)

	out := Aggregate(CalculateMetrics(cleaned))
	require.Equal(t, 2, out.Len())

	b := out.Rows[0]
	require.Equal(t, "B", b.Country)
	require.InDelta(t, 10, float64(b.MortalityRate), 1e-9)
	require.EqualValues(t, 1, b.Critical)

	require.Equal(t, "Z", out.Rows[1].Country)
	require.False(t, out.Rows[1].MortalityRate.Defined())
}

func TestAggregateOrdersAndDropsBlankCountries(t *testing.T) {
	first := normalized("", 5, 0, 0, 0, 0)
	first.ExtractionDate = runAt.Add(-time.Minute)
	cleaned, err := Clean(normalizedTable(
		first,
		normalized("Peru", 1, 0, 0, 1, 0),
		normalized("  ", 1, 0, 0, 1, 0),
		normalized("Chile", 1, 0, 1, 0, 0),
	))
	require.NoError(t, err)

	out := Aggregate(CalculateMetrics(cleaned))
	require.Len(t, out.Rows, 2)
	require.Equal(t, "Chile", out.Rows[0].Country)
	require.Equal(t, "Peru", out.Rows[1].Country)
	for _, r := range out.Rows {
		require.Equal(t, first.ExtractionDate, r.ExtractionDate)
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	cleaned, err := Clean(normalizedTable(
		normalized("A", 100, 10, 50, 40, 0),
		normalized("A", 50, 5, 20, 25, 0),
		normalized("B", 0, 0, 0, 0, 0),
		normalized("C", 7, 1, 2, 4, 3),
	))
	require.NoError(t, err)
	once := Aggregate(CalculateMetrics(cleaned))

	again := Aggregate(asCaseTable(once))
	require.Equal(t, once.Len(), again.Len())
	for i := range once.Rows {
		want, got := once.Rows[i], again.Rows[i]
		require.Equal(t, want.Country, got.Country)
		require.Equal(t, want.Confirmed, got.Confirmed)
		require.Equal(t, want.Deaths, got.Deaths)
		require.Equal(t, want.Recovered, got.Recovered)
		require.Equal(t, want.Active, got.Active)
		require.Equal(t, want.Critical, got.Critical)
		require.Equal(t, want.ExtractionDate, got.ExtractionDate)
		requireSameRate(t, want.MortalityRate, got.MortalityRate)
		requireSameRate(t, want.RecoveryRate, got.RecoveryRate)
		requireSameRate(t, want.ActiveRate, got.ActiveRate)
	}
}

func TestAggregateEmpty(t *testing.T) {
	out := Aggregate(models.Table[models.CaseRecord]{})
	require.Zero(t, out.Len())
	require.Equal(t, models.AggregatedColumns, out.Columns)
}

func asCaseTable(in models.Table[models.AggregatedRecord]) models.Table[models.CaseRecord] {
	rows := make([]models.CaseRecord, len(in.Rows))
	for i, r := range in.Rows {
		rows[i] = models.CaseRecord{
			Country:        r.Country,
			Confirmed:      r.Confirmed,
			Deaths:         r.Deaths,
			Recovered:      r.Recovered,
			Active:         r.Active,
			Critical:       r.Critical,
			MortalityRate:  r.MortalityRate,
			RecoveryRate:   r.RecoveryRate,
			ActiveRate:     r.ActiveRate,
			ExtractionDate: r.ExtractionDate,
		}
	}
	return models.Table[models.CaseRecord]{Columns: in.Columns, Rows: rows}
}

func requireSameRate(t *testing.T, want, got models.Rate) {
	t.Helper()
	require.Equal(t, want.Defined(), got.Defined())
	if want.Defined() {
		require.Equal(t, float64(want), float64(got))
	}
}
