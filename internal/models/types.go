package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// IDList stores an ordered list of message ids as a jsonb column. Order is
// significant: for children it is insertion order, for paths it is
// root-to-parent order.
type IDList []string

// Value implements driver.Valuer
func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *IDList) Scan(value interface{}) error {
	if value == nil {
		*l = IDList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported type for IDList: %T", value)
	}
}

// Last returns the most recently appended id, or "" if the list is empty
func (l IDList) Last() string {
	if len(l) == 0 {
		return ""
	}
	return l[len(l)-1]
}

// First returns the oldest id, or "" if the list is empty
func (l IDList) First() string {
	if len(l) == 0 {
		return ""
	}
	return l[0]
}

// JSONMap stores free-form chat metadata as a jsonb column
type JSONMap map[string]any

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("unsupported type for JSONMap")
	}
}
