// Package enums holds the string enums persisted in text columns and carried
// in event payloads and tokens.
package enums

import (
	"fmt"
	"slices"
)

func oneOf[T ~string](value T, set []T) bool {
	return slices.Contains(set, value)
}

// parse returns the member of set equal to raw; kind names the enum in the
// error.
func parse[T ~string](kind, raw string, set []T) (T, error) {
	if value := T(raw); oneOf(value, set) {
		return value, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
