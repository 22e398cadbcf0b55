package tlv

import (
	"fmt"
	"sort"
	"sync"
)

// Unbounded marks an open side of a tag's length bounds.
const Unbounded = -1

// Tag identifies one optional parameter and how its value is encoded.
// Min and Max bound the encoded value length in bytes; Unbounded disables
// a side.
type Tag struct {
	ID    uint16
	Name  string
	Codec Codec
	Min   int
	Max   int
}

func (t *Tag) String() string {
	if t.Name != "" {
		return t.Name
	}
	return fmt.Sprintf("tag_0x%04x", t.ID)
}

// Fixed reports whether the tag declares an exact value length.
func (t *Tag) Fixed() bool {
	return t.Min >= 0 && t.Min == t.Max
}

func (t *Tag) fits(n int) bool {
	if t.Min != Unbounded && n < t.Min {
		return false
	}
	if t.Max != Unbounded && n > t.Max {
		return false
	}
	return n <= MaxValueLen
}

// Encode validates v against the tag's codec and bounds and returns the
// value bytes without the record header.
func (t *Tag) Encode(v any) ([]byte, error) {
	nv, err := t.Codec.Normalize(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadValueType, t, err)
	}
	b, err := t.Codec.Encode(t, nv)
	if err != nil {
		return nil, err
	}
	if !t.fits(len(b)) {
		return nil, fmt.Errorf("%w: %s length %d outside [%d,%d]", ErrInvalidSize, t, len(b), t.Min, t.Max)
	}
	return b, nil
}

// Decode parses the first length bytes of b as this tag's value.
func (t *Tag) Decode(b []byte, length int) (any, error) {
	if length < 0 || length > len(b) {
		return nil, fmt.Errorf("%w: %s wants %d bytes, have %d", ErrTruncated, t, length, len(b))
	}
	return t.Codec.Decode(t, b[:length])
}

// Registry maps tag ids to definitions. It is safe for concurrent use;
// registration is expected at startup and lookups dominate afterwards.
type Registry struct {
	mu   sync.RWMutex
	tags map[uint16]*Tag
}

func NewRegistry() *Registry {
	return &Registry{tags: make(map[uint16]*Tag)}
}

// Register defines a new tag. Redefining an id fails with
// ErrTagAlreadyDefined; Undefine it first.
func (r *Registry) Register(id uint16, name string, codec Codec, minLen, maxLen int) (*Tag, error) {
	if codec == nil {
		return nil, fmt.Errorf("%w: tag 0x%04x has no codec", ErrInvalidBounds, id)
	}
	if minLen < Unbounded || maxLen < Unbounded {
		return nil, fmt.Errorf("%w: tag 0x%04x [%d,%d]", ErrInvalidBounds, id, minLen, maxLen)
	}
	if minLen != Unbounded && maxLen != Unbounded && minLen > maxLen {
		return nil, fmt.Errorf("%w: tag 0x%04x [%d,%d]", ErrInvalidBounds, id, minLen, maxLen)
	}
	tag := &Tag{ID: id, Name: name, Codec: codec, Min: minLen, Max: maxLen}
	if err := codec.Check(tag); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidBounds, tag, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tags[id]; ok {
		return nil, fmt.Errorf("%w: 0x%04x (%s)", ErrTagAlreadyDefined, id, existing)
	}
	r.tags[id] = tag
	return tag, nil
}

// Lookup never fails: ids without a definition resolve to an opaque,
// unbounded octet tag so unknown parameters still round-trip.
func (r *Registry) Lookup(id uint16) *Tag {
	if tag, ok := r.Registered(id); ok {
		return tag
	}
	return &Tag{ID: id, Codec: Octets, Min: Unbounded, Max: Unbounded}
}

func (r *Registry) Registered(id uint16) (*Tag, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tag, ok := r.tags[id]
	return tag, ok
}

// Undefine removes id from the registry only. Tables already holding a
// value for it keep the old definition.
func (r *Registry) Undefine(id uint16) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tags[id]; !ok {
		return false
	}
	delete(r.tags, id)
	return true
}

func (r *Registry) Tags() []*Tag {
	r.mu.RLock()
	out := make([]*Tag, 0, len(r.tags))
	for _, tag := range r.tags {
		out = append(out, tag)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}
