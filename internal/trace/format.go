package trace

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Format is the encoding of written events.
type Format uint8

const (
	FormatAuto   Format = iota // NDJSON for .ndjson and .jsonl paths, text otherwise
	FormatText
	FormatNDJSON
)

// ParseFormat converts a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return FormatAuto, nil
	case "text":
		return FormatText, nil
	case "ndjson", "json", "jsonl":
		return FormatNDJSON, nil
	}
	return FormatAuto, fmt.Errorf("invalid trace format: %q (expected: auto|text|ndjson)", s)
}

// FormatEvent encodes ev as one newline-terminated line.
func FormatEvent(ev *Event, format Format) []byte {
	if format == FormatNDJSON {
		return appendJSON(nil, ev)
	}
	return appendText(nil, ev)
}

type jsonAttr struct {
	Key   string `json:"k"`
	Value string `json:"v"`
}

type jsonEvent struct {
	Time      string     `json:"time"`
	Seq       uint64     `json:"seq"`
	Kind      string     `json:"kind"`
	Scope     string     `json:"scope"`
	Span      uint64     `json:"span"`
	Parent    uint64     `json:"parent,omitempty"`
	GID       uint64     `json:"gid,omitempty"`
	Name      string     `json:"name"`
	Attrs     []jsonAttr `json:"attrs,omitempty"`
	ElapsedUS int64      `json:"elapsed_us,omitempty"`
	Err       string     `json:"err,omitempty"`
}

func appendJSON(dst []byte, ev *Event) []byte {
	je := jsonEvent{
		Time:      ev.Time.UTC().Format(time.RFC3339Nano),
		Seq:       ev.Seq,
		Kind:      ev.Kind.String(),
		Scope:     ev.Scope.String(),
		Span:      ev.Span,
		Parent:    ev.Parent,
		GID:       ev.GID,
		Name:      ev.Name,
		ElapsedUS: ev.Elapsed.Microseconds(),
		Err:       ev.Err,
	}
	for _, a := range ev.Attrs {
		je.Attrs = append(je.Attrs, jsonAttr(a))
	}
	data, err := json.Marshal(je)
	if err != nil {
		return dst
	}
	return append(append(dst, data...), '\n')
}

// appendText renders
//
//	000042 g7    type     > populate:members
//	000043 g7    type     < populate:members type=Demo.Box`1 12µs
//	000044 g7    type     ! instantiate template=A`1 12µs err="..."
func appendText(dst []byte, ev *Event) []byte {
	dst = fmt.Appendf(dst, "%06d g%-4d %-8s ", ev.Seq, ev.GID, ev.Scope)
	if ev.Parent != 0 {
		dst = append(dst, "  "...)
	}
	switch {
	case ev.Failed():
		dst = append(dst, "! "...)
	case ev.Kind == KindBegin:
		dst = append(dst, "> "...)
	case ev.Kind == KindEnd:
		dst = append(dst, "< "...)
	default:
		dst = append(dst, "* "...)
	}
	dst = append(dst, ev.Name...)
	for _, a := range ev.Attrs {
		dst = append(dst, ' ')
		dst = append(dst, a.Key...)
		dst = append(dst, '=')
		dst = appendValue(dst, a.Value)
	}
	if ev.Kind == KindEnd {
		dst = append(dst, ' ')
		dst = append(dst, ev.Elapsed.Round(time.Microsecond).String()...)
	}
	if ev.Failed() {
		dst = append(dst, " err="...)
		dst = strconv.AppendQuote(dst, ev.Err)
	}
	return append(dst, '\n')
}

func appendValue(dst []byte, v string) []byte {
	if v == "" || strings.ContainsAny(v, " \t\n\"=") {
		return strconv.AppendQuote(dst, v)
	}
	return append(dst, v...)
}
