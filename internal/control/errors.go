package control

import "errors"

// Domain errors for the control package.
var (
	// ErrUnknownKey is returned when a config update names a setting
	// outside the allow-list.
	ErrUnknownKey = errors.New("control: unknown setting")

	// ErrBadType is returned when a setting value has the wrong JSON type.
	ErrBadType = errors.New("control: wrong value type")

	// ErrOutOfRange is returned when a setting value falls outside its
	// permitted range.
	ErrOutOfRange = errors.New("control: value out of range")

	// ErrEmptyUpdate is returned when an update carries no recognised keys.
	ErrEmptyUpdate = errors.New("control: empty update")

	// ErrSettingsPersist is returned when the settings file write failed.
	// The in-memory update is NOT rolled back.
	ErrSettingsPersist = errors.New("control: settings write failed")
)
