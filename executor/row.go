package executor

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Value is one cell of a result row. Null marks an unbound variable, which
// is distinct from an empty string.
type Value struct {
	String string
	Null   bool
}

// Str returns a non-null value.
func Str(s string) Value { return Value{String: s} }

// Null is the unbound value.
var Null = Value{Null: true}

// MarshalJSON encodes the value as a JSON string, or null.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Null {
		return []byte("null"), nil
	}
	return json.Marshal(v.String)
}

// UnmarshalJSON decodes a JSON string or null.
func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = Null
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// numbers written by hand in fixtures
		var n json.Number
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return err
		}
		s = n.String()
	}
	*v = Str(s)
	return nil
}

// Float parses the value as a number.
func (v Value) Float() (float64, bool) {
	if v.Null {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.String), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Year returns the leading four-digit year of a date value.
func (v Value) Year() (string, bool) {
	if v.Null || len(v.String) < 4 {
		return "", false
	}
	y := v.String[:4]
	for i := 0; i < 4; i++ {
		if y[i] < '0' || y[i] > '9' {
			return "", false
		}
	}
	if len(v.String) > 4 && v.String[4] >= '0' && v.String[4] <= '9' {
		return "", false
	}
	return y, true
}

// Row maps variable names to values. Every projected variable is present;
// unbound ones hold Null.
type Row map[string]Value

// Get returns the named value, or Null when the column does not exist.
func (r Row) Get(name string) Value {
	if v, ok := r[name]; ok {
		return v
	}
	return Null
}

// first returns the first non-null value among names.
func (r Row) first(names ...string) Value {
	for _, n := range names {
		if v, ok := r[n]; ok && !v.Null {
			return v
		}
	}
	return Null
}

// Date returns the canonical date column.
func (r Row) Date() Value { return r.Get(DateColumn) }

// Amount returns the round amount.
func (r Row) Amount() Value { return r.Get("amount") }

// Company returns the company name.
func (r Row) Company() Value { return r.first("company_name", "name", "company") }

// Phase returns the funding phase.
func (r Row) Phase() Value { return r.first("phase", "type") }

// Industry returns the industry name.
func (r Row) Industry() Value { return r.first("industry_name", "industry") }

// Location returns the location name.
func (r Row) Location() Value {
	return r.first("location_name", "location", "city_name", "city", "canton_name", "canton")
}
