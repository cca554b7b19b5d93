package diag

import "sync"

// DedupReporter forwards each distinct diagnostic once. Two diagnostics are
// the same when code, severity, subject and message match; notes are not
// compared, so the first report's notes win.
type DedupReporter struct {
	next Reporter

	mu   sync.Mutex
	seen map[dedupKey]struct{}
}

type dedupKey struct {
	code    Code
	sev     Severity
	subject string
	msg     string
}

func NewDedupReporter(next Reporter) *DedupReporter {
	return &DedupReporter{next: next, seen: map[dedupKey]struct{}{}}
}

func (r *DedupReporter) Report(d Diagnostic) {
	if r == nil || r.next == nil {
		return
	}
	key := dedupKey{d.Code, d.Severity, d.Subject, d.Message}
	r.mu.Lock()
	_, dup := r.seen[key]
	if !dup {
		r.seen[key] = struct{}{}
	}
	r.mu.Unlock()
	if !dup {
		r.next.Report(d)
	}
}
