package trace

import "time"

// Kind tells span boundaries from instant events.
type Kind uint8

const (
	KindBegin Kind = iota + 1
	KindEnd
	KindPoint
)

var kindNames = [...]string{KindBegin: "begin", KindEnd: "end", KindPoint: "point"}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// Scope is the granularity of an event. Lower values are coarser.
type Scope uint8

const (
	ScopeCommand  Scope = iota + 1 // one CLI command
	ScopeAssembly                  // loading, binding, warming and image I/O
	ScopeType                      // lazy population and instantiation
	ScopeMember                    // method instantiation and member copies
)

var scopeNames = [...]string{
	ScopeCommand:  "command",
	ScopeAssembly: "assembly",
	ScopeType:     "type",
	ScopeMember:   "member",
}

func (s Scope) String() string {
	if int(s) < len(scopeNames) && scopeNames[s] != "" {
		return scopeNames[s]
	}
	return "unknown"
}

// Attr is one key/value annotation. Attributes keep the order they were
// added in.
type Attr struct {
	Key   string
	Value string
}

// Event is a single trace record.
type Event struct {
	Time    time.Time
	Seq     uint64 // stamped by the tracer that stores the event
	Kind    Kind
	Scope   Scope
	Span    uint64
	Parent  uint64
	GID     uint64
	Name    string // "populate:members", "instantiate", "load_assembly", ...
	Attrs   []Attr
	Elapsed time.Duration // set on KindEnd
	Err     string        // failure text; empty when the work succeeded
}

// Failed reports whether the event records a failure.
func (ev *Event) Failed() bool { return ev.Err != "" }

// Attr returns the value of the first attribute named key.
func (ev *Event) Attr(key string) (string, bool) {
	for _, a := range ev.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}
