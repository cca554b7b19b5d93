package diag

import (
	"slices"
	"strings"
	"sync"
)

// Bag collects diagnostics up to a limit.
type Bag struct {
	mu    sync.Mutex
	items []Diagnostic
	max   int
}

func NewBag(max int) *Bag {
	return &Bag{
		items: make([]Diagnostic, 0, min(max, 64)),
		max:   max,
	}
}

// Add appends d unless the bag is full. It reports whether d was kept.
func (b *Bag) Add(d Diagnostic) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= b.max {
		return false
	}
	b.items = append(b.items, d)
	return true
}

func (b *Bag) Cap() int { return b.max }

// HasErrors reports whether any diagnostic has Severity >= Error.
func (b *Bag) HasErrors() bool { return b.any(SevError) }

// HasWarnings reports whether any diagnostic has Severity >= Warning.
func (b *Bag) HasWarnings() bool { return b.any(SevWarning) }

func (b *Bag) any(sev Severity) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.items {
		if b.items[i].Severity >= sev {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Items returns a copy of the collected diagnostics.
func (b *Bag) Items() []Diagnostic {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.items)
}

// Merge appends the diagnostics of other, raising the limit if needed.
func (b *Bag) Merge(other *Bag) {
	items := other.Items()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.max = max(b.max, len(b.items)+len(items))
	b.items = append(b.items, items...)
}

// Sort orders by subject, severity (desc), code (asc) and message for stable
// output independent of goroutine scheduling.
func (b *Bag) Sort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	slices.SortStableFunc(b.items, func(x, y Diagnostic) int {
		if c := strings.Compare(x.Subject, y.Subject); c != 0 {
			return c
		}
		if x.Severity != y.Severity {
			return int(y.Severity) - int(x.Severity)
		}
		if x.Code != y.Code {
			return int(x.Code) - int(y.Code)
		}
		return strings.Compare(x.Message, y.Message)
	})
}

// Dedup drops later diagnostics with the same code and subject.
func (b *Bag) Dedup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	type key struct {
		code    Code
		subject string
	}
	seen := make(map[key]bool)
	out := b.items[:0]
	for _, d := range b.items {
		k := key{d.Code, d.Subject}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	b.items = out
}
