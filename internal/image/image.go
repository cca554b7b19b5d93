package image

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fortio.org/safecast"

	"cilgraph/internal/diag"
	"cilgraph/internal/loader"
	"cilgraph/internal/meta"
	"cilgraph/internal/trace"
)

// Extension is the file extension of metadata images.
const Extension = ".cgi"

// Version is the image layout version. Readers reject any other.
const Version uint32 = 1

var magic = [4]byte{'C', 'G', 'I', 'M'}

// ErrSchema marks an image this reader cannot decode.
var ErrSchema = errors.New("image: schema mismatch")

// header is the eagerly decoded part of an image.
type header struct {
	Name       string                 `msgpack:"name" cbor:"1,keyasint"`
	Version    string                 `msgpack:"version,omitempty" cbor:"2,keyasint,omitempty"`
	Kind       string                 `msgpack:"kind,omitempty" cbor:"3,keyasint,omitempty"`
	References []loader.ReferenceDecl `msgpack:"references,omitempty" cbor:"4,keyasint,omitempty"`
	Types      []entry                `msgpack:"types,omitempty" cbor:"5,keyasint,omitempty"`
}

// entry is one definition: its shell data plus encoded blobs for the lazily
// populated parts. Nested holds an encoded []entry.
type entry struct {
	Header     loader.TypeHeader `msgpack:"header" cbor:"1,keyasint"`
	Signature  []byte            `msgpack:"signature,omitempty" cbor:"2,keyasint,omitempty"`
	Members    []byte            `msgpack:"members,omitempty" cbor:"3,keyasint,omitempty"`
	Attributes []byte            `msgpack:"attributes,omitempty" cbor:"4,keyasint,omitempty"`
	Nested     []byte            `msgpack:"nested,omitempty" cbor:"5,keyasint,omitempty"`
}

// Write encodes every definition of mod with codec. Types are populated in
// the process.
func Write(w io.Writer, mod *meta.Module, codec Codec) error {
	h := header{Name: mod.Name().Text()}
	if v := mod.Version(); v != nil {
		h.Version = v.Original()
	}
	if mod.Kind() == meta.ModuleNetModule {
		h.Kind = "netmodule"
	}
	for _, r := range mod.References() {
		h.References = append(h.References, loader.ReferenceDecl{Name: r.Name.Text(), Version: r.Raw})
	}
	for _, t := range mod.Types() {
		e, err := encodeType(t, mod, codec)
		if err != nil {
			return fmt.Errorf("image: %s: %w", t.FullName(), err)
		}
		h.Types = append(h.Types, e)
	}
	body, err := codec.Marshal(&h)
	if err != nil {
		return fmt.Errorf("image: encode header: %w", err)
	}
	size, err := safecast.Conv[uint32](len(body))
	if err != nil {
		return fmt.Errorf("image: header too large: %w", err)
	}

	bw := bufio.NewWriter(w)
	bw.Write(magic[:])
	binary.Write(bw, binary.BigEndian, Version)
	bw.WriteByte(codec.ID())
	binary.Write(bw, binary.BigEndian, size)
	bw.Write(body)
	return bw.Flush()
}

func encodeType(t *meta.Type, from *meta.Module, codec Codec) (entry, error) {
	e := entry{Header: loader.DescribeHeader(t)}
	s, err := loader.DescribeSignature(t, from)
	if err != nil {
		return entry{}, err
	}
	if e.Signature, err = codec.Marshal(&s); err != nil {
		return entry{}, err
	}
	m, err := loader.DescribeMembers(t, from)
	if err != nil {
		return entry{}, err
	}
	if e.Members, err = codec.Marshal(&m); err != nil {
		return entry{}, err
	}
	a, err := loader.DescribeAttributes(t, from)
	if err != nil {
		return entry{}, err
	}
	if len(a) > 0 {
		if e.Attributes, err = codec.Marshal(a); err != nil {
			return entry{}, err
		}
	}
	nested, err := t.LoadNestedTypes()
	if err != nil {
		return entry{}, err
	}
	if len(nested) > 0 {
		entries := make([]entry, 0, len(nested))
		for _, n := range nested {
			ne, err := encodeType(n, from, codec)
			if err != nil {
				return entry{}, err
			}
			entries = append(entries, ne)
		}
		if e.Nested, err = codec.Marshal(entries); err != nil {
			return entry{}, err
		}
	}
	return e, nil
}

// WriteFile writes the image of mod to path, replacing it atomically.
func WriteFile(path string, mod *meta.Module, codec Codec) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "tmp-*"+Extension)
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if err := Write(f, mod, codec); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// Read decodes the type table of an image and returns a module whose types
// decode the rest on demand. The codec is the one recorded in the image.
func Read(ctx context.Context, r io.Reader, opts loader.Options) (*meta.Module, error) {
	span := trace.Begin(trace.FromContext(ctx), trace.ScopeAssembly, "read_image", trace.ParentID(ctx))
	mod, err := read(ctx, r, opts)
	if mod != nil {
		span.Attr("assembly", mod.String())
	}
	span.End(err)
	return mod, err
}

func read(ctx context.Context, r io.Reader, opts loader.Options) (*meta.Module, error) {
	var fixed [4 + 4 + 1 + 4]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrSchema, err)
	}
	if !bytes.Equal(fixed[:4], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrSchema, fixed[:4])
	}
	if v := binary.BigEndian.Uint32(fixed[4:8]); v != Version {
		return nil, fmt.Errorf("%w: version %d, expected %d", ErrSchema, v, Version)
	}
	codec, err := codecByID(fixed[8])
	if err != nil {
		return nil, err
	}
	body := make([]byte, binary.BigEndian.Uint32(fixed[9:]))
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("%w: truncated type table: %v", ErrSchema, err)
	}
	var h header
	if err := codec.Unmarshal(body, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	mod, err := loader.NewModule(&loader.AssemblyDecl{
		Name:       h.Name,
		Version:    h.Version,
		Kind:       h.Kind,
		References: h.References,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.FromContext(ctx)
	}
	b := loader.NewBinder(mod, opts)
	for i := range h.Types {
		if _, err := b.AddType(&blobSource{e: &h.Types[i], codec: codec, reporter: opts.Reporter}); err != nil {
			return nil, err
		}
	}
	return mod, nil
}

// ReadFile is Read on the file at path.
func ReadFile(ctx context.Context, path string, opts loader.Options) (*meta.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	mod, err := Read(ctx, bufio.NewReader(f), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return mod, nil
}

// Register makes u load images from files with the image extension.
func Register(u *loader.Universe) {
	u.Register(Extension, func(ctx context.Context, u *loader.Universe, path string) (*meta.Module, error) {
		opts := u.Options()
		mod, err := ReadFile(ctx, path, opts)
		if errors.Is(err, ErrSchema) {
			diag.ReportError(opts.Reporter, diag.ImageSchemaMismatch, path, err.Error()).Emit()
		}
		return mod, err
	})
}

// blobSource decodes the parts of one entry when the binder asks for them.
type blobSource struct {
	e        *entry
	codec    Codec
	reporter diag.Reporter
}

func (s *blobSource) Header() loader.TypeHeader { return s.e.Header }

func (s *blobSource) Signature() (loader.SignatureDecl, error) {
	var d loader.SignatureDecl
	return d, s.decode("signature", s.e.Signature, &d)
}

func (s *blobSource) Members() (loader.MembersDecl, error) {
	var d loader.MembersDecl
	return d, s.decode("members", s.e.Members, &d)
}

func (s *blobSource) Attributes() ([]loader.AttributeDecl, error) {
	var d []loader.AttributeDecl
	return d, s.decode("attributes", s.e.Attributes, &d)
}

func (s *blobSource) Nested() ([]loader.Source, error) {
	var entries []entry
	if err := s.decode("nested types", s.e.Nested, &entries); err != nil {
		return nil, err
	}
	out := make([]loader.Source, len(entries))
	for i := range entries {
		out[i] = &blobSource{e: &entries[i], codec: s.codec, reporter: s.reporter}
	}
	return out, nil
}

func (s *blobSource) decode(what string, blob []byte, v any) error {
	if len(blob) == 0 {
		return nil
	}
	if err := s.codec.Unmarshal(blob, v); err != nil {
		diag.ReportError(s.reporter, diag.ImageCorrupt, s.e.Header.Name, what+": "+err.Error()).Emit()
		return fmt.Errorf("%w: %s of %s: %v", ErrSchema, what, s.e.Header.Name, err)
	}
	return nil
}
