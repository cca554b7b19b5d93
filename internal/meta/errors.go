package meta

import (
	"errors"
	"fmt"
)

// ErrNilProvider is returned when a nil provider is installed.
var ErrNilProvider = errors.New("meta: nil provider")

// LazyProperty names a lazily populated part of a type.
type LazyProperty uint8

const (
	PropMembers LazyProperty = iota
	PropNestedTypes
	PropAttributes
	PropSignature
)

func (p LazyProperty) String() string {
	switch p {
	case PropMembers:
		return "members"
	case PropNestedTypes:
		return "nested"
	case PropAttributes:
		return "attributes"
	case PropSignature:
		return "signature"
	default:
		return fmt.Sprintf("LazyProperty(%d)", p)
	}
}

// PopulationError reports a provider failure. The property stays unpopulated.
type PopulationError struct {
	Type     string
	Property LazyProperty
	Err      error
}

func (e *PopulationError) Error() string {
	return fmt.Sprintf("populate %s of %s: %v", e.Property, e.Type, e.Err)
}

func (e *PopulationError) Unwrap() error { return e.Err }
