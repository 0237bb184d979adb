package identity

import (
	"fmt"
	"strconv"
	"strings"
)

// ID is the canonical user reference used across the registry, the store,
// and the wire protocol. The underlying value is the canonical decimal
// string form, so "42" and the numeric 42 compare equal once parsed and the
// type is usable as a map key.
type ID string

// None is the zero ID, used where no identity applies (e.g. no fan-out
// exclusion).
const None ID = ""

func FromInt64(id int64) ID {
	return ID(strconv.FormatInt(id, 10))
}

// Parse normalizes a wire-form identifier. Identifiers may arrive as
// decimal strings or as JSON numbers rendered to strings; both normalize to
// the same canonical form.
func Parse(raw string) (ID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return None, fmt.Errorf("empty identifier")
	}

	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || value <= 0 {
		return None, fmt.Errorf("invalid identifier %q", raw)
	}

	return FromInt64(value), nil
}

func (id ID) String() string {
	return string(id)
}

// Int64 returns the storage projection of the identifier. Zero for the
// empty ID.
func (id ID) Int64() int64 {
	value, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0
	}
	return value
}

func (id ID) IsZero() bool {
	return id == None
}
