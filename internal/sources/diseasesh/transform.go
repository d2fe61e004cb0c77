package diseasesh

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/models"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/stageerr"
)

const countryInfoKey = "countryInfo"

// fieldMapping projects source keys onto output columns, in output order.
var fieldMapping = []struct {
	source string
	column models.Column
}{
	{"country", models.ColCountry},
	{"cases", models.ColConfirmed},
	{"deaths", models.ColDeaths},
	{"recovered", models.ColRecovered},
	{"active", models.ColActive},
	{"critical", models.ColCritical},
	{"tests", models.ColTests},
	{"population", models.ColPopulation},
	{"continent", models.ColContinent},
	{"lat", models.ColLatitude},
	{"long", models.ColLongitude},
}

// Transformer normalizes raw payloads into NormalizedRecord tables.
type Transformer struct {
	dataSource string
	strict     bool
	clock      clockwork.Clock
}

// NewTransformer creates a transformer. In strict mode every mapped source
// field must be present in every object.
func NewTransformer(dataSource string, strict bool, clock clockwork.Clock) *Transformer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Transformer{dataSource: dataSource, strict: strict, clock: clock}
}

// Transform accepts a single JSON object or an array of objects. All rows are
// stamped with the same extraction date.
func (t *Transformer) Transform(payload []byte) (models.Table[models.NormalizedRecord], error) {
	var empty models.Table[models.NormalizedRecord]

	objects, err := decodeObjects(payload)
	if err != nil {
		return empty, stageerr.Transform("transform", err)
	}

	extractedAt := t.clock.Now().UTC()
	present := make(map[string]bool, len(fieldMapping))
	rows := make([]models.NormalizedRecord, 0, len(objects))

	for i, obj := range objects {
		flat := flatten(obj)

		if t.strict {
			if missing := missingFields(flat); len(missing) > 0 {
				return empty, stageerr.Newf(stageerr.KindTransform, "transform",
					"object %d is missing fields: %s", i, strings.Join(missing, ", "))
			}
		}

		rec, err := t.project(flat, present)
		if err != nil {
			return empty, stageerr.Transform("transform", fmt.Errorf("object %d: %w", i, err))
		}
		rec.ExtractionDate = extractedAt
		rows = append(rows, rec)
	}

	cols := make(models.Columns, 0, len(fieldMapping)+2)
	for _, m := range fieldMapping {
		if present[m.source] {
			cols = append(cols, m.column)
		}
	}
	cols = append(cols, models.ColExtractionDate, models.ColDataSource)

	return models.Table[models.NormalizedRecord]{Columns: cols, Rows: rows}, nil
}

func (t *Transformer) project(obj map[string]any, present map[string]bool) (models.NormalizedRecord, error) {
	rec := models.NormalizedRecord{DataSource: t.dataSource}
	var err error

	for _, m := range fieldMapping {
		v, ok := obj[m.source]
		if !ok {
			continue
		}
		present[m.source] = true

		switch m.column {
		case models.ColCountry:
			rec.Country, err = asString(v)
		case models.ColContinent:
			rec.Continent, err = asString(v)
		case models.ColConfirmed:
			rec.Confirmed, err = asInt(v)
		case models.ColDeaths:
			rec.Deaths, err = asInt(v)
		case models.ColRecovered:
			rec.Recovered, err = asInt(v)
		case models.ColActive:
			rec.Active, err = asInt(v)
		case models.ColCritical:
			rec.Critical, err = asInt(v)
		case models.ColTests:
			rec.Tests, err = asInt(v)
		case models.ColPopulation:
			rec.Population, err = asInt(v)
		case models.ColLatitude:
			rec.Latitude, err = asFloat(v)
		case models.ColLongitude:
			rec.Longitude, err = asFloat(v)
		}
		if err != nil {
			return rec, fmt.Errorf("field %q: %w", m.source, err)
		}
	}
	return rec, nil
}

func decodeObjects(payload []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode payload: unexpected data after top-level value")
	}

	switch v := raw.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("item %d is %T, want object", i, item)
			}
			out = append(out, obj)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("payload is %T, want object or array", raw)
	}
}

// flatten lifts the nested country metadata to the top level. Top-level
// keys win on collision.
func flatten(obj map[string]any) map[string]any {
	info, ok := obj[countryInfoKey].(map[string]any)
	if !ok {
		return obj
	}
	out := make(map[string]any, len(obj)+len(info))
	for k, v := range info {
		out[k] = v
	}
	for k, v := range obj {
		if k == countryInfoKey {
			continue
		}
		out[k] = v
	}
	return out
}

func missingFields(obj map[string]any) []string {
	var missing []string
	for _, m := range fieldMapping {
		if _, ok := obj[m.source]; !ok {
			missing = append(missing, m.source)
		}
	}
	sort.Strings(missing)
	return missing
}

func asString(v any) (*string, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		return &s, nil
	case json.Number:
		str := s.String()
		return &str, nil
	default:
		return nil, fmt.Errorf("unexpected %T", v)
	}
}

func asInt(v any) (*int64, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return &i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64 {
			return nil, errors.New("number out of range")
		}
		i := int64(math.Trunc(f))
		return &i, nil
	default:
		return nil, fmt.Errorf("unexpected %T, want number", v)
	}
}

func asFloat(v any) (*float64, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, err
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("unexpected %T, want number", v)
	}
}
