// Package models - role.go defines the Permissions column type that normalizes the
// capability tags stored on a role.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Permissions is the decoded permissions column of a role.
//
// The column normally holds a JSON array of strings, but older rows may hold a
// JSON string whose content is an encoded array, and the column may be NULL.
// Scan accepts all three. Anything else leaves Tags empty and records the
// reason in ParseErr instead of failing the row, so a single corrupt role
// denies access rather than breaking the query.
type Permissions struct {
	Tags     []string
	ParseErr error
}

// NewPermissions builds a Permissions value from tags
func NewPermissions(tags ...string) Permissions {
	return Permissions{Tags: tags}
}

// Scan implements sql.Scanner
func (p *Permissions) Scan(src interface{}) error {
	p.Tags = nil
	p.ParseErr = nil

	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		p.ParseErr = fmt.Errorf("unsupported permissions column type %T", src)
		return nil
	}

	tags, err := ParsePermissions(raw)
	if err != nil {
		p.ParseErr = err
		return nil
	}
	p.Tags = tags
	return nil
}

// Value implements driver.Valuer, always writing the canonical array form
func (p Permissions) Value() (driver.Value, error) {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// MarshalJSON renders the tag list
func (p Permissions) MarshalJSON() ([]byte, error) {
	if p.Tags == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.Tags)
}

// ParsePermissions decodes a stored permissions value. It accepts a JSON array
// of strings or a JSON string that itself contains such an array. Empty input
// and JSON null decode to an empty set.
func ParsePermissions(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("invalid permissions JSON: %w", err)
	}

	switch v := decoded.(type) {
	case nil:
		return []string{}, nil
	case []interface{}:
		return stringTags(v)
	case string:
		var inner []interface{}
		if err := json.Unmarshal([]byte(v), &inner); err != nil {
			return nil, fmt.Errorf("invalid encoded permissions string: %w", err)
		}
		return stringTags(inner)
	default:
		return nil, fmt.Errorf("permissions must be an array, got %T", decoded)
	}
}

func stringTags(items []interface{}) ([]string, error) {
	tags := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("permission at index %d is %T, not a string", i, item)
		}
		tags = append(tags, s)
	}
	return tags, nil
}
