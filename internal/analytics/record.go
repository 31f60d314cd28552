package analytics

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is a single backend row in transport-friendly form.
type Record map[string]any

// ID returns the record's id field as a string. Records without a usable id
// report ok=false.
func (r Record) ID() (string, bool) {
	if r == nil {
		return "", false
	}
	switch v := r["id"].(type) {
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}

// String returns the named field formatted for display. Missing fields are empty.
func (r Record) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// Float returns the named field as a float64 when it holds a number.
func (r Record) Float(field string) (float64, bool) {
	switch v := r[field].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// Time parses the named field as a timestamp. Zero when absent or malformed.
func (r Record) Time(field string) time.Time {
	value := strings.TrimSpace(r.String(field))
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	dup := make(Record, len(r))
	for k, v := range r {
		dup[k] = v
	}
	return dup
}
