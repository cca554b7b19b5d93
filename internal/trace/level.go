package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	LevelOff    Level = iota
	LevelError        // failures only, at any scope
	LevelPhase        // commands and assembly work
	LevelDetail       // adds type population and instantiation
	LevelDebug        // adds member work
)

var levelNames = [...]string{"off", "error", "phase", "detail", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel converts a level name, case-insensitively. The empty string is
// LevelOff.
func ParseLevel(s string) (Level, error) {
	if s == "" {
		return LevelOff, nil
	}
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: %s)", s, strings.Join(levelNames[:], "|"))
}

// Covers reports whether routine events of scope are recorded at this level.
func (l Level) Covers(scope Scope) bool {
	switch l {
	case LevelPhase:
		return scope <= ScopeAssembly
	case LevelDetail:
		return scope <= ScopeType
	case LevelDebug:
		return scope <= ScopeMember
	}
	return false
}

// Admits reports whether ev is recorded at this level. Failures are recorded
// at every level above LevelOff.
func (l Level) Admits(ev *Event) bool {
	if l == LevelOff {
		return false
	}
	return ev.Failed() || l.Covers(ev.Scope)
}
