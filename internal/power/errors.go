package power

import "codeberg.org/mutker/handheldctl/internal/errors"

const (
	ErrApplyFailed  = errors.ErrorCode("power_apply_failed")
	ErrVerifyFailed = errors.ErrorCode("power_verify_failed")
	ErrNoProfile    = errors.ErrorCode("power_no_profile")
)
