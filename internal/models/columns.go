package models

// Column names a field of a pipeline table.
type Column string

const (
	ColCountry        Column = "country"
	ColConfirmed      Column = "confirmed"
	ColDeaths         Column = "deaths"
	ColRecovered      Column = "recovered"
	ColActive         Column = "active"
	ColCritical       Column = "critical"
	ColTests          Column = "tests"
	ColPopulation     Column = "population"
	ColContinent      Column = "continent"
	ColLatitude       Column = "latitude"
	ColLongitude      Column = "longitude"
	ColExtractionDate Column = "extraction_date"
	ColDataSource     Column = "data_source"
	ColMortalityRate  Column = "mortality_rate"
	ColRecoveryRate   Column = "recovery_rate"
	ColActiveRate     Column = "active_rate"
)

// CountColumns are the five case counters.
var CountColumns = Columns{ColConfirmed, ColDeaths, ColRecovered, ColActive, ColCritical}

// RateColumns are the derived percentages.
var RateColumns = Columns{ColMortalityRate, ColRecoveryRate, ColActiveRate}

// RequiredColumns must be present before a table may be stored.
var RequiredColumns = Columns{
	ColCountry, ColConfirmed, ColDeaths, ColRecovered, ColActive, ColCritical, ColExtractionDate,
}

// AggregatedColumns is the column set produced by aggregation.
var AggregatedColumns = Columns{
	ColCountry,
	ColConfirmed, ColDeaths, ColRecovered, ColActive, ColCritical,
	ColMortalityRate, ColRecoveryRate, ColActiveRate,
	ColExtractionDate,
}

// Columns is an ordered set of column names.
type Columns []Column

// Has reports whether c is present.
func (cs Columns) Has(c Column) bool {
	for _, col := range cs {
		if col == c {
			return true
		}
	}
	return false
}

// Missing returns the required columns absent from cs, in required order.
func (cs Columns) Missing(required Columns) Columns {
	var missing Columns
	for _, c := range required {
		if !cs.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// With returns a copy of cs extended by the columns it does not already hold.
func (cs Columns) With(extra ...Column) Columns {
	out := make(Columns, len(cs), len(cs)+len(extra))
	copy(out, cs)
	for _, c := range extra {
		if !out.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Strings returns the column names.
func (cs Columns) Strings() []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}
