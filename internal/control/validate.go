package control

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// valueKind classifies the JSON type a setting accepts.
type valueKind int

const (
	kindInteger valueKind = iota
	kindNumber
	kindBool
)

// rule is one entry in the settings allow-list.
type rule struct {
	kind valueKind
	min  float64
	max  float64
}

// rules is the allow-list of per-device settings and their ranges.
// Keys absent from this map are rejected outright.
var rules = map[string]rule{
	"max_door_open_seconds":     {kind: kindInteger, min: 30, max: 300},
	"check_interval":            {kind: kindInteger, min: 1, max: 30},
	"enable_door_closed_alerts": {kind: kindBool},
	"gas_threshold_ppm":         {kind: kindInteger, min: 100, max: 1000},
	"alert_cooldown_minutes":    {kind: kindInteger, min: 5, max: 120},
	"enable_continuous_alerts":  {kind: kindBool},
	"temp_min_celsius":          {kind: kindNumber, min: -5, max: 5},
	"temp_max_celsius":          {kind: kindNumber, min: 5, max: 15},
	"humidity_max_percent":      {kind: kindNumber, min: 50, max: 95},
	"enable_malfunction_alerts": {kind: kindBool},
}

// ValidateUpdate checks an update mapping against the allow-list and range
// rules, returning the normalized values (integers as int, numbers as
// float64, booleans as bool).
//
// JSON decoding delivers every number as float64; integer settings
// additionally require a whole value, so 30.5 is rejected where 30 passes.
func ValidateUpdate(updates map[string]any) (map[string]any, error) {
	if len(updates) == 0 {
		return nil, ErrEmptyUpdate
	}

	normalized := make(map[string]any, len(updates))
	for key, raw := range updates {
		r, ok := rules[key]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}

		switch r.kind {
		case kindBool:
			b, ok := raw.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be a boolean", ErrBadType, key)
			}
			normalized[key] = b

		case kindInteger:
			f, ok := numericValue(raw)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be an integer", ErrBadType, key)
			}
			if f != math.Trunc(f) {
				return nil, fmt.Errorf("%w: %s must be a whole number", ErrBadType, key)
			}
			if f < r.min || f > r.max {
				return nil, fmt.Errorf("%w: %s must be between %d and %d", ErrOutOfRange, key, int(r.min), int(r.max))
			}
			normalized[key] = int(f)

		case kindNumber:
			f, ok := numericValue(raw)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be a number", ErrBadType, key)
			}
			if f < r.min || f > r.max {
				return nil, fmt.Errorf("%w: %s must be between %g and %g", ErrOutOfRange, key, r.min, r.max)
			}
			normalized[key] = f
		}
	}

	return normalized, nil
}

// ValidValue reports whether a single key/value pair passes validation.
// Used by the interaction engine for local pre-checks before publishing.
func ValidValue(key string, value any) error {
	_, err := ValidateUpdate(map[string]any{key: value})
	return err
}

// SettingKeys returns the allow-listed setting names relevant to one
// service, in no particular order.
func SettingKeys() []string {
	keys := make([]string, 0, len(rules))
	for k := range rules {
		keys = append(keys, k)
	}
	return keys
}

// SettingHint describes what a key accepts, for prompting users.
// Returns an empty string for unknown keys.
func SettingHint(key string) string {
	r, ok := rules[key]
	if !ok {
		return ""
	}
	switch r.kind {
	case kindBool:
		return "true or false"
	case kindInteger:
		return fmt.Sprintf("whole number between %d and %d", int(r.min), int(r.max))
	default:
		return fmt.Sprintf("number between %g and %g", r.min, r.max)
	}
}

// ParseSettingValue converts user-entered text into the typed value a key
// accepts, applying the same range rules as ValidateUpdate.
func ParseSettingValue(key, text string) (any, error) {
	r, ok := rules[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	text = strings.TrimSpace(text)
	var value any
	switch r.kind {
	case kindBool:
		b, err := strconv.ParseBool(strings.ToLower(text))
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a boolean", ErrBadType, key)
		}
		value = b
	default:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a number", ErrBadType, key)
		}
		value = f
	}

	normalized, err := ValidateUpdate(map[string]any{key: value})
	if err != nil {
		return nil, err
	}
	return normalized[key], nil
}

// numericValue accepts the number representations the decoder and callers
// produce: float64 from JSON, int from code paths that pre-normalize.
func numericValue(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
