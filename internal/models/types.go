package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"math"
)

// RunStatus tracks the outcome of a pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Rate is a percentage rounded to two decimals. NaN means undefined, which
// happens when the confirmed count is zero.
type Rate float64

// UndefinedRate returns the NaN rate.
func UndefinedRate() Rate {
	return Rate(math.NaN())
}

// Defined reports whether r holds a number.
func (r Rate) Defined() bool {
	return !math.IsNaN(float64(r))
}

// Nullable converts r for storage; undefined rates become NULL.
func (r Rate) Nullable() NullableFloat64 {
	if !r.Defined() {
		return NullableFloat64{}
	}
	return NullableFloat64{Float64: float64(r), Valid: true}
}

// MarshalJSON encodes undefined rates as null.
func (r Rate) MarshalJSON() ([]byte, error) {
	if !r.Defined() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(r))
}

// UnmarshalJSON decodes null back to an undefined rate.
func (r *Rate) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = UndefinedRate()
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Rate(f)
	return nil
}

// NullableFloat64 handles nullable float columns.
type NullableFloat64 struct {
	Float64 float64
	Valid   bool
}

func (n NullableFloat64) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Float64, nil
}

func (n *NullableFloat64) Scan(value interface{}) error {
	if value == nil {
		n.Float64 = 0
		n.Valid = false
		return nil
	}

	switch v := value.(type) {
	case float64:
		n.Float64 = v
	case int64:
		n.Float64 = float64(v)
	case []byte:
		if err := json.Unmarshal(v, &n.Float64); err != nil {
			return err
		}
	default:
		return errors.New("failed to scan NullableFloat64")
	}

	n.Valid = true
	return nil
}

// Rate converts back to a Rate; NULL becomes undefined.
func (n NullableFloat64) Rate() Rate {
	if !n.Valid {
		return UndefinedRate()
	}
	return Rate(n.Float64)
}

func (n NullableFloat64) MarshalJSON() ([]byte, error) {
	return n.Rate().MarshalJSON()
}
