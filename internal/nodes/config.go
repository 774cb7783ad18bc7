package nodes

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kode4food/wireflow/pkg/api"
)

type (
	// number accepts both JSON numbers and numeric strings, as flow
	// documents written by hand or by older editors carry either
	number float64

	// text accepts strings, booleans and numbers, keeping their JSON text
	text string
)

var unitDurations = map[string]time.Duration{
	"millisecond":  time.Millisecond,
	"milliseconds": time.Millisecond,
	"second":       time.Second,
	"seconds":      time.Second,
	"minute":       time.Minute,
	"minutes":      time.Minute,
	"hour":         time.Hour,
	"hours":        time.Hour,
	"day":          24 * time.Hour,
	"days":         24 * time.Hour,
}

func (n *number) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*n = 0
	case float64:
		*n = number(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%w: %q is not a number", ErrInvalidConfig, t)
		}
		*n = number(f)
	default:
		return fmt.Errorf("%w: %s is not a number", ErrInvalidConfig, data)
	}
	return nil
}

func (t *text) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch s := v.(type) {
	case nil:
		*t = ""
	case string:
		*t = text(s)
	default:
		*t = text(data)
	}
	return nil
}

// duration scales v by a unit name such as "seconds" or "minute"
func duration(v number, unit string) (time.Duration, error) {
	if unit == "" {
		unit = "seconds"
	}
	u, ok := unitDurations[unit]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidConfig, unit)
	}
	return time.Duration(float64(v) * float64(u)), nil
}

func seconds(v number) time.Duration {
	return time.Duration(float64(v) * float64(time.Second))
}

func millis(v float64) time.Duration {
	return time.Duration(v * float64(time.Millisecond))
}

// toFloat interprets numbers and numeric strings
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// toText renders a value the way it would appear as a string property
func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := api.EncodeValue(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	default:
		return false
	}
}
