// ABOUTME: JSON-encoded column types shared by SQLite and PostgreSQL backends.
// ABOUTME: IntList, FloatList and LocalizedNames implement sql.Scanner and driver.Valuer.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// IntList is an integer slice stored as a JSON array in a TEXT column.
type IntList []int

// Value implements driver.Valuer.
func (l IntList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal([]int(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *IntList) Scan(src any) error {
	raw, err := jsonBytes(src)
	if err != nil || raw == nil {
		*l = nil
		return err
	}
	var out []int
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode int list: %w", err)
	}
	*l = out
	return nil
}

// Contains reports whether n is in the list.
func (l IntList) Contains(n int) bool {
	for _, v := range l {
		if v == n {
			return true
		}
	}
	return false
}

// FloatList is a float slice stored as a JSON array in a TEXT column.
type FloatList []float64

// Value implements driver.Valuer.
func (l FloatList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal([]float64(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *FloatList) Scan(src any) error {
	raw, err := jsonBytes(src)
	if err != nil || raw == nil {
		*l = nil
		return err
	}
	var out []float64
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode float list: %w", err)
	}
	*l = out
	return nil
}

// LocalizedNames maps a locale code (en, es, ...) to a display name.
type LocalizedNames map[string]string

// Value implements driver.Valuer.
func (n LocalizedNames) Value() (driver.Value, error) {
	if len(n) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(map[string]string(n))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (n *LocalizedNames) Scan(src any) error {
	raw, err := jsonBytes(src)
	if err != nil || raw == nil {
		*n = nil
		return err
	}
	out := map[string]string{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode localized names: %w", err)
	}
	*n = out
	return nil
}

func jsonBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []byte(v), nil
	case []byte:
		if len(v) == 0 {
			return nil, nil
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", src)
	}
}
