package backend

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// String reads the first non-empty text value among keys.
func (r Row) String(keys ...string) string {
	for _, key := range keys {
		if val, ok := r[key]; ok {
			if str := toString(val); str != "" {
				return str
			}
		}
	}
	return ""
}

// Float reads the first numeric value among keys. Numeric strings are parsed;
// unparseable or missing values yield 0.
func (r Row) Float(keys ...string) float64 {
	for _, key := range keys {
		if val, ok := r[key]; ok && val != nil {
			if f, ok := toFloat(val); ok {
				return f
			}
		}
	}
	return 0
}

// Bool reads the first boolean-like value among keys.
func (r Row) Bool(keys ...string) bool {
	for _, key := range keys {
		if val, ok := r[key]; ok && val != nil {
			return toBool(val)
		}
	}
	return false
}

// Raw returns the first present value among keys.
func (r Row) Raw(keys ...string) (any, bool) {
	for _, key := range keys {
		if val, ok := r[key]; ok && val != nil {
			return val, true
		}
	}
	return nil, false
}

// Has reports whether any of keys is present, even with a null value.
func (r Row) Has(keys ...string) bool {
	for _, key := range keys {
		if _, ok := r[key]; ok {
			return true
		}
	}
	return false
}

// AsString renders a scalar column value as trimmed text.
func AsString(val any) string {
	return toString(val)
}

// AsFloat converts a numeric or numeric-string value.
func AsFloat(val any) (float64, bool) {
	return toFloat(val)
}

// AsBool interprets booleans, "true"/"sim"/"1" strings and non-zero numbers.
func AsBool(val any) bool {
	return toBool(val)
}

// ParseTime converts a timestamp-like value into time.Time. It accepts
// time.Time, RFC 3339 strings (with or without fraction), date-only strings,
// and epoch values in milliseconds or seconds.
func ParseTime(val any) (time.Time, bool) {
	switch v := val.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, !v.IsZero()
	case string:
		return parseTimeString(v)
	}
	if f, ok := toFloat(val); ok {
		return fromEpoch(f)
	}
	return time.Time{}, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
	"02/01/2006",
}

func parseTimeString(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "null") {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	return time.Time{}, false
}

// Values above 1e11 are treated as milliseconds (year 5138 in seconds).
func fromEpoch(f float64) (time.Time, bool) {
	if f <= 0 {
		return time.Time{}, false
	}
	if f > 1e11 {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	return time.Unix(int64(f), 0).UTC(), true
}

func toString(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		// Named string types such as enum values.
		if rv := reflect.ValueOf(val); rv.Kind() == reflect.String {
			return strings.TrimSpace(rv.String())
		}
		return ""
	}
}

func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		// Decimal comma ("12,90") as typed in hand-edited rows.
		if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
			if f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64); err == nil {
				return f, true
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

func toBool(val any) bool {
	switch v := val.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "sim", "on", "t":
			return true
		}
		return false
	default:
		f, ok := toFloat(val)
		return ok && f != 0
	}
}

func stringTrimQuotes(raw json.RawMessage) string {
	str := strings.TrimSpace(string(raw))
	return strings.Trim(str, `"`)
}

// readMessage extracts a human-readable message from an error body in any of
// the shapes the backend services use.
func readMessage(body []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return strings.TrimSpace(string(body))
	}
	for _, key := range []string{"message", "msg", "error_description", "error", "hint", "details"} {
		if val, ok := fields[key]; ok {
			var str string
			if err := json.Unmarshal(val, &str); err == nil && strings.TrimSpace(str) != "" {
				return strings.TrimSpace(str)
			}
			if nested := readMessage(val); nested != "" && nested != "null" {
				return nested
			}
		}
	}
	return ""
}
