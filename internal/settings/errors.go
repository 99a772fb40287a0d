package settings

import "codeberg.org/mutker/handheldctl/internal/errors"

const (
	ErrNotFound       = errors.ErrorCode("settings_not_found")
	ErrInvalidKey     = errors.ErrorCode("settings_invalid_key")
	ErrDecodeFailed   = errors.ErrorCode("settings_decode_failed")
	ErrEncodeFailed   = errors.ErrorCode("settings_encode_failed")
	ErrUnknownBackend = errors.ErrorCode("settings_unknown_backend")
)
