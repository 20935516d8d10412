package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EntityID identifies a catalog row. Older clients wrote numeric ids, so
// EntityID accepts both JSON strings and JSON numbers and always marshals
// as a string.
type EntityID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *EntityID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("entity id: %w", err)
		}
		*id = EntityID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("entity id: expected string or number, got %s", data)
	}
	*id = EntityID(n.String())
	return nil
}

// String returns the id as a plain string.
func (id EntityID) String() string {
	return string(id)
}

// IDs converts plain strings to entity ids.
func IDs(ids ...string) []EntityID {
	out := make([]EntityID, len(ids))
	for i, s := range ids {
		out[i] = EntityID(s)
	}
	return out
}
