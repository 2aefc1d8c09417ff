package swap

import "errors"

// Fatal errors abort the current migration attempt after rolling back anything
// created during it. ErrRetireFailed is the one non-fatal case: when a new
// swap file is already active, a stuck old file is reported as a warning.
var (
	ErrInsufficientDiskSpace    = errors.New("insufficient disk space for swap file")
	ErrSizeMismatch             = errors.New("swap file size mismatch after allocation")
	ErrActivationFailed         = errors.New("failed to activate swap file")
	ErrEmergencyProvisionFailed = errors.New("failed to provision emergency swap")
	ErrRetireFailed             = errors.New("failed to retire swap file")
	ErrSafetyAbort              = errors.New("refusing to change swap under memory pressure")
)
