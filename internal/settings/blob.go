package settings

import (
	"context"
	"encoding/json"

	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/fan"
	"codeberg.org/mutker/handheldctl/internal/power"
)

// Blob is everything persisted for the user.
type Blob struct {
	Enabled bool          `json:"enabled"`
	Fans    []fan.Config  `json:"fans"`
	Power   power.Profile `json:"power"`
}

// Encode serialises b as indented JSON.
func Encode(b Blob) ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, errors.New().Wrap(ErrEncodeFailed, err)
	}

	return data, nil
}

// Decode parses data written by Encode. Top-level fields missing from
// data keep the values of defaults.
func Decode(data []byte, defaults Blob) (Blob, error) {
	var raw struct {
		Enabled *bool          `json:"enabled"`
		Fans    []fan.Config   `json:"fans"`
		Power   *power.Profile `json:"power"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return defaults, errors.New().Wrap(ErrDecodeFailed, err)
	}

	b := defaults
	if raw.Enabled != nil {
		b.Enabled = *raw.Enabled
	}
	if raw.Fans != nil {
		b.Fans = raw.Fans
	}
	if raw.Power != nil {
		b.Power = *raw.Power
	}

	return b, nil
}

// LoadBlob reads and decodes the blob stored under key. A missing or
// unreadable blob yields defaults together with the error.
func LoadBlob(ctx context.Context, s Store, key string, defaults Blob) (Blob, error) {
	data, err := s.Load(ctx, key)
	if err != nil {
		return defaults, err
	}

	return Decode(data, defaults)
}

// SaveBlob encodes b and stores it under key.
func SaveBlob(ctx context.Context, s Store, key string, b Blob) error {
	data, err := Encode(b)
	if err != nil {
		return err
	}

	return s.Save(ctx, key, data)
}
