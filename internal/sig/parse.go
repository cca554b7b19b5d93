package sig

import (
	"fmt"
	"strconv"
	"strings"

	"cilgraph/internal/meta"
)

// Parse reads one type reference.
//
//	type   = prefix { "[" dims "]" | "*" | "&" | "modopt(" type ")" | "modreq(" type ")" }
//	prefix = "!" int | "!!" int | "void"
//	       | "method" [callconv] type "*(" [type { "," type }] ")"
//	       | ["[" assembly "]"] [namespace "."] name { "/" name } ["<" type { "," type } ">"]
func Parse(s string) (*Ref, error) {
	p := &parser{src: s}
	r, err := p.typ()
	if err != nil {
		return nil, err
	}
	p.space()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected %q", p.src[p.pos:])
	}
	return r, nil
}

// MustParse is Parse for references known to be well formed.
func MustParse(s string) *Ref {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d in %q", ErrSyntax, fmt.Sprintf(format, args...), p.pos, p.src)
}

func (p *parser) space() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *parser) accept(c byte) bool {
	p.space()
	if p.peek() == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(c byte) error {
	if !p.accept(c) {
		return p.errorf("expected %q", c)
	}
	return nil
}

func isNameByte(c byte) bool {
	return c != 0 && !strings.ContainsRune(" /<>,[]*&()!", rune(c))
}

// keyword consumes w when it appears as a whole word at the cursor.
func (p *parser) keyword(w string) bool {
	p.space()
	if !strings.HasPrefix(p.src[p.pos:], w) {
		return false
	}
	end := p.pos + len(w)
	if end < len(p.src) && isNameByte(p.src[end]) {
		return false
	}
	p.pos = end
	return true
}

func (p *parser) typ() (*Ref, error) {
	r, err := p.prefix()
	if err != nil {
		return nil, err
	}
	for {
		p.space()
		switch p.peek() {
		case '[':
			p.pos++
			if r, err = p.array(r); err != nil {
				return nil, err
			}
		case '*':
			if p.fnptrMarker() {
				return r, nil
			}
			p.pos++
			r = &Ref{Kind: RefPointer, Elem: r}
		case '&':
			p.pos++
			r = &Ref{Kind: RefReference, Elem: r}
		case 'm':
			kind := RefModOpt
			switch {
			case p.keyword("modopt"):
			case p.keyword("modreq"):
				kind = RefModReq
			default:
				return r, nil
			}
			if err := p.expect('('); err != nil {
				return nil, err
			}
			mod, err := p.typ()
			if err != nil {
				return nil, err
			}
			if err := p.expect(')'); err != nil {
				return nil, err
			}
			r = &Ref{Kind: kind, Elem: r, Modifier: mod}
		default:
			return r, nil
		}
	}
}

// fnptrMarker reports whether the '*' at the cursor opens the parameter list
// of a function pointer.
func (p *parser) fnptrMarker() bool {
	i := p.pos + 1
	for i < len(p.src) && p.src[i] == ' ' {
		i++
	}
	return i < len(p.src) && p.src[i] == '('
}

func (p *parser) prefix() (*Ref, error) {
	p.space()
	switch {
	case p.peek() == '!':
		p.pos++
		kind := RefTypeParam
		if p.peek() == '!' {
			p.pos++
			kind = RefMethodParam
		}
		n, err := p.number()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, p.errorf("negative parameter index %d", n)
		}
		return &Ref{Kind: kind, Index: n}, nil
	case p.keyword("void"):
		return &Ref{Kind: RefVoid}, nil
	case p.keyword("method"):
		return p.fnptr()
	}
	return p.named()
}

var callConvs = []struct {
	word string
	cc   meta.CallingConvention
}{
	{"default", meta.CallDefault},
	{"unmanaged cdecl", meta.CallC},
	{"unmanaged stdcall", meta.CallStdCall},
	{"unmanaged thiscall", meta.CallThisCall},
	{"unmanaged fastcall", meta.CallFastCall},
	{"vararg", meta.CallVarArg},
}

func (p *parser) fnptr() (*Ref, error) {
	r := &Ref{Kind: RefFunctionPointer, VarArgStart: -1}
	if p.keyword("instance") {
		r.CallConv = meta.CallHasThis
	}
	for _, c := range callConvs {
		if p.keyword(c.word) {
			r.CallConv |= c.cc
			break
		}
	}
	ret, err := p.typ()
	if err != nil {
		return nil, err
	}
	r.Return = ret
	if err := p.expect('*'); err != nil {
		return nil, err
	}
	if err := p.expect('('); err != nil {
		return nil, err
	}
	if p.accept(')') {
		return r, nil
	}
	for {
		p.space()
		if strings.HasPrefix(p.src[p.pos:], "...") {
			if r.VarArgStart >= 0 {
				return nil, p.errorf("second vararg sentinel")
			}
			p.pos += 3
			r.VarArgStart = len(r.Params)
		} else {
			t, err := p.typ()
			if err != nil {
				return nil, err
			}
			r.Params = append(r.Params, t)
		}
		if p.accept(')') {
			return r, nil
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
	}
}

func (p *parser) named() (*Ref, error) {
	r := &Ref{Kind: RefNamed}
	if p.accept('[') {
		start := p.pos
		for p.pos < len(p.src) && p.src[p.pos] != ']' {
			p.pos++
		}
		r.Assembly = strings.TrimSpace(p.src[start:p.pos])
		if err := p.expect(']'); err != nil {
			return nil, err
		}
		if r.Assembly == "" {
			return nil, p.errorf("empty assembly name")
		}
	}
	first, err := p.name()
	if err != nil {
		return nil, err
	}
	if i := strings.LastIndexByte(first, '.'); i >= 0 {
		r.Namespace, first = first[:i], first[i+1:]
		if first == "" {
			return nil, p.errorf("empty type name")
		}
	}
	r.Names = []string{first}
	for p.accept('/') {
		n, err := p.name()
		if err != nil {
			return nil, err
		}
		r.Names = append(r.Names, n)
	}
	if p.accept('<') {
		for {
			a, err := p.typ()
			if err != nil {
				return nil, err
			}
			r.Args = append(r.Args, a)
			if p.accept('>') {
				break
			}
			if err := p.expect(','); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

func (p *parser) name() (string, error) {
	p.space()
	start := p.pos
	for p.pos < len(p.src) && isNameByte(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", p.errorf("expected a type name")
	}
	return p.src[start:p.pos], nil
}

func (p *parser) number() (int, error) {
	p.space()
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	n, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		p.pos = start
		return 0, p.errorf("expected a number")
	}
	return n, nil
}

// array parses the dimensions after '['.
func (p *parser) array(elem *Ref) (*Ref, error) {
	r := &Ref{Kind: RefArray, Elem: elem}
	if p.accept(']') {
		return r, nil
	}
	type dim struct {
		lo, size int
		hasLo    bool
		hasSize  bool
	}
	var dims []dim
	for {
		var d dim
		p.space()
		switch c := p.peek(); {
		case c == '*':
			p.pos++
		case c == '-' || (c >= '0' && c <= '9'):
			n, err := p.number()
			if err != nil {
				return nil, err
			}
			p.space()
			if strings.HasPrefix(p.src[p.pos:], "...") {
				p.pos += 3
				d.lo, d.hasLo = n, true
				p.space()
				if c := p.peek(); c == '-' || (c >= '0' && c <= '9') {
					hi, err := p.number()
					if err != nil {
						return nil, err
					}
					if hi < n {
						return nil, p.errorf("upper bound %d below lower bound %d", hi, n)
					}
					d.size, d.hasSize = hi-n+1, true
				}
			} else {
				d.size, d.hasSize = n, true
			}
		}
		dims = append(dims, d)
		if p.accept(']') {
			break
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
	}
	r.Rank = len(dims)
	lastLo, lastSize := -1, -1
	for i, d := range dims {
		if d.hasLo {
			lastLo = i
		}
		if d.hasSize {
			lastSize = i
		}
	}
	for i := 0; i <= lastLo; i++ {
		r.LowerBounds = append(r.LowerBounds, dims[i].lo)
	}
	for i := 0; i <= lastSize; i++ {
		if !dims[i].hasSize {
			return nil, p.errorf("dimension %d has no size but a later one does", i)
		}
		r.Sizes = append(r.Sizes, dims[i].size)
	}
	return r, nil
}
