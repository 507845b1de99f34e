package resolver

import (
	"fmt"
	"strconv"
	"strings"
)

// ToInt converts a resolved value to an integer coordinate or size.
// Fractional values truncate toward zero per the device coordinate
// convention.
func ToInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case float32:
		return int(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", t)
		}
		return int(f), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}

// ToFloat converts a resolved value to a float64.
func ToFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}

// ToBool converts a resolved value to a boolean. String forms follow the
// automation platform's truthiness ("on", "true", "yes", "1").
func ToBool(v interface{}) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int:
		return t != 0, nil
	case int64:
		return t != 0, nil
	case float64:
		return t != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "on", "yes", "1":
			return true, nil
		case "false", "off", "no", "0", "":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", t)
	default:
		return false, fmt.Errorf("cannot convert %T to bool", v)
	}
}

// ToString converts a resolved value to its display text.
func ToString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ToFloatSlice converts a resolved value to a series of numbers, as used by
// graph components.
func ToFloatSlice(v interface{}) ([]float64, error) {
	switch t := v.(type) {
	case []float64:
		return t, nil
	case []interface{}:
		out := make([]float64, 0, len(t))
		for _, e := range t {
			f, err := ToFloat(e)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil
	case string:
		parts := strings.Split(strings.Trim(strings.TrimSpace(t), "[]"), ",")
		out := make([]float64, 0, len(parts))
		for _, p := range parts {
			if strings.TrimSpace(p) == "" {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("not a number series: %q", t)
			}
			out = append(out, f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to number series", v)
	}
}
