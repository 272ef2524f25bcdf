package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CurrentSchemaVersion is written by [Encode].
const CurrentSchemaVersion byte = 1

// ErrCorruptRecord is returned when a stored blob cannot be decoded.
var ErrCorruptRecord = errors.New("session: corrupt record")

// Encode serialises r with the current schema version prefix.
func Encode(r *Record) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, CurrentSchemaVersion)
	return append(out, body...), nil
}

// Decode parses a blob produced by [Encode].
func Decode(raw []byte) (*Record, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrCorruptRecord)
	}
	if raw[0] != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported session schema version %d", ErrCorruptRecord, raw[0])
	}
	var r Record
	if err := json.Unmarshal(raw[1:], &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if r.ID == "" || r.UserID == "" {
		return nil, fmt.Errorf("%w: missing identifiers", ErrCorruptRecord)
	}
	return &r, nil
}
