package models

import (
	"database/sql/driver"
	"encoding/json"
)

// StringList is a list of strings stored as JSONB
type StringList []string

// Value implements driver.Valuer for JSONB
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB
func (s *StringList) Scan(value interface{}) error {
	bytes := jsonbBytes(value)
	if len(bytes) == 0 {
		*s = StringList{}
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Payload is an arbitrary JSON document stored as JSONB
type Payload json.RawMessage

// Value implements driver.Valuer for JSONB
func (p Payload) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	return []byte(p), nil
}

// Scan implements sql.Scanner for JSONB
func (p *Payload) Scan(value interface{}) error {
	bytes := jsonbBytes(value)
	if len(bytes) == 0 {
		*p = nil
		return nil
	}
	*p = append((*p)[:0], bytes...)
	return nil
}

// MarshalJSON emits the raw payload, or null when empty
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// UnmarshalJSON stores a copy of data
func (p *Payload) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = nil
		return nil
	}
	*p = append((*p)[:0], data...)
	return nil
}

// NewPayload marshals v into a Payload
func NewPayload(v any) (Payload, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Payload(b), nil
}

// Decode unmarshals the payload into v
func (p Payload) Decode(v any) error {
	return json.Unmarshal(p, v)
}

// Handle the different types pgx might return for JSONB
func jsonbBytes(value interface{}) []byte {
	switch v := value.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}
