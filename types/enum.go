package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// enum is satisfied by every string-mapped enum in this package.
type enum interface {
	comparable
	fmt.Stringer
	Valid() bool
}

func parseEnum[T comparable](kind string, names map[T]string, s string) (T, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for value, name := range names {
		if name == s {
			return value, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q", kind, s)
}

func unmarshalEnum[T any](data []byte, parse func(string) (T, error), dst *T) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	value, err := parse(raw)
	if err != nil {
		return err
	}
	*dst = value
	return nil
}

func valueEnum[T enum](v T) (driver.Value, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("invalid enum value %v", v)
	}
	return v.String(), nil
}

func scanEnum[T any](src any, parse func(string) (T, error), dst *T) error {
	var raw string
	switch typed := src.(type) {
	case string:
		raw = typed
	case []byte:
		raw = string(typed)
	default:
		return fmt.Errorf("cannot scan %T into enum", src)
	}
	value, err := parse(raw)
	if err != nil {
		return err
	}
	*dst = value
	return nil
}
