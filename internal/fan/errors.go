package fan

import "codeberg.org/mutker/handheldctl/internal/errors"

const (
	ErrInvalidCurve     = errors.ErrorCode("fan_invalid_curve")
	ErrSetSpeedFailed   = errors.ErrorCode("fan_set_speed_failed")
	ErrReleaseFailed    = errors.ErrorCode("fan_release_failed")
	ErrSensorReadFailed = errors.ErrorCode("fan_sensor_read_failed")
)
