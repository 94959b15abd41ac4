package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Datum is one chart coordinate. Plotly axes mix numeric and categorical
// values, so a Datum carries either a number or a string and keeps that kind
// across a JSON round-trip.
type Datum struct {
	num   float64
	str   string
	isStr bool
}

// Num returns a numeric datum.
func Num(v float64) Datum { return Datum{num: v} }

// Str returns a categorical datum.
func Str(v string) Datum { return Datum{str: v, isStr: true} }

// Nums converts numbers into data.
func Nums(values ...float64) []Datum {
	out := make([]Datum, len(values))
	for i, v := range values {
		out[i] = Num(v)
	}
	return out
}

// Strs converts strings into data.
func Strs(values ...string) []Datum {
	out := make([]Datum, len(values))
	for i, v := range values {
		out[i] = Str(v)
	}
	return out
}

func (d Datum) IsString() bool { return d.isStr }

func (d Datum) Float() float64 { return d.num }

// Value returns the underlying string or float64.
func (d Datum) Value() any {
	if d.isStr {
		return d.str
	}
	return d.num
}

func (d Datum) String() string {
	if d.isStr {
		return d.str
	}
	return strconv.FormatFloat(d.num, 'f', -1, 64)
}

func (d Datum) MarshalJSON() ([]byte, error) {
	if d.isStr {
		return json.Marshal(d.str)
	}
	return json.Marshal(d.num)
}

func (d *Datum) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("empty datum")
	}
	// Gaps belong in the z matrix; a null coordinate has no position.
	if bytes.Equal(b, []byte("null")) {
		return fmt.Errorf("datum must be a number or string, got null")
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = Str(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("datum must be a number or string: %w", err)
	}
	*d = Num(f)
	return nil
}
