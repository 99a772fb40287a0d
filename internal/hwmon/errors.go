package hwmon

import "codeberg.org/mutker/handheldctl/internal/errors"

const (
	ErrDeviceNotFound = errors.ErrorCode("hwmon_device_not_found")
	ErrReadFailed     = errors.ErrorCode("hwmon_read_failed")
	ErrWriteFailed    = errors.ErrorCode("hwmon_write_failed")
	ErrParseFailed    = errors.ErrorCode("hwmon_parse_failed")
)
