package registry

import "errors"

// Domain errors for the registry package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, registry.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrInvalidMAC is returned when a MAC address does not normalize to
	// twelve hex characters.
	ErrInvalidMAC = errors.New("registry: invalid MAC address")

	// ErrUnsupportedModel is returned when a registration names a model
	// absent from the document's model map.
	ErrUnsupportedModel = errors.New("registry: unsupported model")

	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("registry: device not found")

	// ErrDeviceAlreadyAssigned is returned when assigning a device that
	// already has an owner.
	ErrDeviceAlreadyAssigned = errors.New("registry: device already assigned")

	// ErrUserNotFound is returned when a user ID does not exist.
	ErrUserNotFound = errors.New("registry: user not found")

	// ErrDuplicateUser is returned when creating a user whose ID is taken.
	ErrDuplicateUser = errors.New("registry: user already exists")

	// ErrDuplicateChatID is returned when a Telegram chat is already
	// linked to a different user.
	ErrDuplicateChatID = errors.New("registry: chat already linked")

	// ErrInvalidName is returned when a user-facing name is empty.
	ErrInvalidName = errors.New("registry: name cannot be empty")

	// ErrNameTooLong is returned when a device name exceeds the limit.
	ErrNameTooLong = errors.New("registry: name too long")

	// ErrInvalidChatID is returned when a chat identifier is not a
	// decimal integer.
	ErrInvalidChatID = errors.New("registry: invalid chat id")

	// ErrServiceNotFound is returned when a service ID does not exist.
	ErrServiceNotFound = errors.New("registry: service not found")

	// ErrModelNotFound is returned when a model name does not exist.
	ErrModelNotFound = errors.New("registry: model not found")

	// ErrSnapshot is returned when the document mutated in memory but the
	// snapshot write failed. The mutation is NOT rolled back; a later
	// write may persist it.
	ErrSnapshot = errors.New("registry: snapshot write failed")
)
