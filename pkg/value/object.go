package value

import "hash/fnv"

// ObjKind tags the concrete variant behind an Obj.
type ObjKind int

const (
	ObjKindString ObjKind = iota
	ObjKindFunction
	ObjKindClosure
	ObjKindUpvalue
)

func (k ObjKind) String() string {
	switch k {
	case ObjKindString:
		return "string"
	case ObjKindFunction:
		return "function"
	case ObjKindClosure:
		return "closure"
	case ObjKindUpvalue:
		return "upvalue"
	default:
		return "unknown"
	}
}

// Obj is satisfied by every heap object kind (ObjString here; Function,
// Closure and Upvalue in package chunk, where Function owns its Chunk).
// Keeping the interface stringer-shaped, rather than requiring
// value to type-switch on concrete object kinds, is what lets Chunk and
// Function live in a separate package without an import cycle back to
// value.
type Obj interface {
	ObjKind() ObjKind
	String() string

	next() Obj
	setNext(Obj)
}

// ObjHeader is embedded by every concrete Obj to form the intrusive
// teardown list described in the data model: every allocated object is
// linked into the owning Heap at creation time. Construct with NewObjHeader
// so callers outside this package never need to name its unexported fields.
type ObjHeader struct {
	kind ObjKind
	link Obj
}

// NewObjHeader returns an ObjHeader tagging its owner as the given kind.
// Used by Function/Closure/Upvalue in package chunk.
func NewObjHeader(kind ObjKind) ObjHeader { return ObjHeader{kind: kind} }

func (h *ObjHeader) ObjKind() ObjKind { return h.kind }
func (h *ObjHeader) next() Obj        { return h.link }
func (h *ObjHeader) setNext(o Obj)    { h.link = o }

// ObjString is an immutable, length-prefixed, hashed byte sequence.
type ObjString struct {
	ObjHeader
	Chars string
	Hash  uint32
}

func (s *ObjString) String() string { return s.Chars }

// NewObjString allocates a fresh, untracked-by-any-Interner ObjString and
// tracks it in heap. Used for values built at runtime (e.g. the VM's
// OP_ADD string concatenation) that have no reason to be canonicalized:
// only compile-time literals and identifiers go through an Interner.
func NewObjString(heap *Heap, chars string) *ObjString {
	obj := &ObjString{
		ObjHeader: NewObjHeader(ObjKindString),
		Chars:     chars,
		Hash:      hashString(chars),
	}
	heap.Track(obj)
	return obj
}

func hashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// Heap owns every Object allocated for one VM/compile unit, linked via the
// intrusive ObjHeader list so teardown never needs to walk a separate
// registry: freeing the Heap drops the head and Go's GC reclaims the rest.
type Heap struct {
	head Obj
}

// Track links o into the Heap's intrusive object list and returns it,
// for convenient use at the allocation site: `return heap.Track(&ObjFoo{...})`.
func (h *Heap) Track(o Obj) Obj {
	o.setNext(h.head)
	h.head = o
	return o
}

// Objects returns the live objects, most-recently-allocated first.
func (h *Heap) Objects() []Obj {
	var out []Obj
	for o := h.head; o != nil; o = o.next() {
		out = append(out, o)
	}
	return out
}

// Free drops the Heap's references to every tracked object.
func (h *Heap) Free() { h.head = nil }

// Interner canonicalizes string content to a single *ObjString per distinct
// value, so Table lookups on interned keys reduce to identity comparison.
// Composed with github.com/josharian/intern at the compiler boundary (see
// package compiler), which canonicalizes the underlying Go string before it
// ever reaches here.
type Interner struct {
	heap    *Heap
	strings map[string]*ObjString
}

// NewInterner creates an Interner whose allocations are tracked in heap.
func NewInterner(heap *Heap) *Interner {
	return &Interner{heap: heap, strings: make(map[string]*ObjString)}
}

// Intern returns the canonical *ObjString for s, allocating one on first
// sight and reusing it on every subsequent call with equal content.
func (in *Interner) Intern(s string) *ObjString {
	if existing, ok := in.strings[s]; ok {
		return existing
	}
	obj := &ObjString{
		ObjHeader: NewObjHeader(ObjKindString),
		Chars:     s,
		Hash:      hashString(s),
	}
	in.strings[s] = obj
	in.heap.Track(obj)
	return obj
}
