package control

import (
	"errors"
	"testing"
)

func TestValidateUpdateRanges(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   any
		wantErr error
	}{
		{name: "door seconds lower bound", key: "max_door_open_seconds", value: float64(30)},
		{name: "door seconds upper bound", key: "max_door_open_seconds", value: float64(300)},
		{name: "door seconds below", key: "max_door_open_seconds", value: float64(29), wantErr: ErrOutOfRange},
		{name: "door seconds above", key: "max_door_open_seconds", value: float64(301), wantErr: ErrOutOfRange},
		{name: "door seconds fractional", key: "max_door_open_seconds", value: 30.5, wantErr: ErrBadType},
		{name: "check interval ok", key: "check_interval", value: float64(1)},
		{name: "check interval above", key: "check_interval", value: float64(31), wantErr: ErrOutOfRange},
		{name: "gas threshold ok", key: "gas_threshold_ppm", value: float64(100)},
		{name: "gas threshold below", key: "gas_threshold_ppm", value: float64(99), wantErr: ErrOutOfRange},
		{name: "gas threshold above", key: "gas_threshold_ppm", value: float64(1001), wantErr: ErrOutOfRange},
		{name: "cooldown ok", key: "alert_cooldown_minutes", value: float64(120)},
		{name: "cooldown below", key: "alert_cooldown_minutes", value: float64(4), wantErr: ErrOutOfRange},
		{name: "temp min fractional ok", key: "temp_min_celsius", value: -4.5},
		{name: "temp min below", key: "temp_min_celsius", value: -5.1, wantErr: ErrOutOfRange},
		{name: "temp max ok", key: "temp_max_celsius", value: float64(15)},
		{name: "temp max above", key: "temp_max_celsius", value: 15.1, wantErr: ErrOutOfRange},
		{name: "humidity ok", key: "humidity_max_percent", value: float64(95)},
		{name: "humidity below", key: "humidity_max_percent", value: float64(49), wantErr: ErrOutOfRange},
		{name: "bool ok", key: "enable_door_closed_alerts", value: true},
		{name: "bool wrong type", key: "enable_door_closed_alerts", value: float64(1), wantErr: ErrBadType},
		{name: "unknown key", key: "reactor_power", value: float64(1), wantErr: ErrUnknownKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateUpdate(map[string]any{tt.key: tt.value})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateUpdateNormalizesIntegers(t *testing.T) {
	got, err := ValidateUpdate(map[string]any{
		"max_door_open_seconds":    float64(60),
		"temp_min_celsius":         float64(2),
		"enable_continuous_alerts": true,
	})
	if err != nil {
		t.Fatalf("ValidateUpdate: %v", err)
	}
	if v, ok := got["max_door_open_seconds"].(int); !ok || v != 60 {
		t.Errorf("max_door_open_seconds = %v (%T), want int 60", got["max_door_open_seconds"], got["max_door_open_seconds"])
	}
	if v, ok := got["temp_min_celsius"].(float64); !ok || v != 2 {
		t.Errorf("temp_min_celsius = %v (%T), want float64 2", got["temp_min_celsius"], got["temp_min_celsius"])
	}
}

func TestValidateUpdateRejectsAllOnOneBadKey(t *testing.T) {
	_, err := ValidateUpdate(map[string]any{
		"max_door_open_seconds": float64(60),
		"gas_threshold_ppm":     float64(5000),
	})
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("error = %v, want ErrOutOfRange", err)
	}
}

func TestValidateUpdateEmpty(t *testing.T) {
	if _, err := ValidateUpdate(map[string]any{}); !errors.Is(err, ErrEmptyUpdate) {
		t.Errorf("error = %v, want ErrEmptyUpdate", err)
	}
}
