package object

import "time"

// Kind tags the shape of an Object's payload.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindPlaceholder
	KindPoints
	KindLines
	KindTriangles
	KindPolygons
	KindQuads
	KindUnstructuredGrid
	KindUniformGrid
	KindRectilinearGrid
	KindStructuredGrid
	KindScalarField
	KindVectorField
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindPlaceholder:
		return "placeholder"
	case KindPoints:
		return "points"
	case KindLines:
		return "lines"
	case KindTriangles:
		return "triangles"
	case KindPolygons:
		return "polygons"
	case KindQuads:
		return "quads"
	case KindUnstructuredGrid:
		return "unstructured-grid"
	case KindUniformGrid:
		return "uniform-grid"
	case KindRectilinearGrid:
		return "rectilinear-grid"
	case KindStructuredGrid:
		return "structured-grid"
	case KindScalarField:
		return "scalar-field"
	case KindVectorField:
		return "vector-field"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Transform is a row-major 4x4 homogeneous transform.
type Transform [16]float64

// IdentityTransform returns the identity transform.
func IdentityTransform() Transform {
	var t Transform
	t[0], t[5], t[10], t[15] = 1, 1, 1, 1
	return t
}

// Meta carries the bookkeeping fields every object in a timestep-aware
// pipeline needs regardless of its payload kind.
type Meta struct {
	BlockIndex    int
	BlockCount    int
	Timestep      int
	TimestepCount int
	Iteration     int
	Generation    int
	CreatorModule uint32
	RealTime      time.Time
	Transform     Transform
}

// Object is an immutable scientific data payload. Once Store'd into a
// Registry it must never be mutated; downstream consumers are handed the
// same pointer, so any mutation would be observed by every holder.
type Object struct {
	id         ID
	kind       Kind
	payload    []byte
	meta       Meta
	attributes map[string]string
	references []ID
}

// New constructs an Object. The payload is the kind-specific serialized
// form, left opaque at this layer: readers/writers outside the core know
// how to interpret it for their own Kind.
func New(kind Kind, payload []byte, meta Meta) *Object {
	return &Object{
		id:         NewID(),
		kind:       kind,
		payload:    payload,
		meta:       meta,
		attributes: make(map[string]string),
	}
}

// ID returns the object's stable identifier.
func (o *Object) ID() ID { return o.id }

// Kind returns the object's kind tag.
func (o *Object) Kind() Kind { return o.kind }

// Payload returns the raw kind-specific bytes. Callers must not modify the
// returned slice; Object is immutable once published.
func (o *Object) Payload() []byte { return o.payload }

// Meta returns the object's metadata block.
func (o *Object) Meta() Meta { return o.meta }

// Attribute returns a free-form string attribute and whether it was set.
func (o *Object) Attribute(key string) (string, bool) {
	v, ok := o.attributes[key]
	return v, ok
}

// SetAttribute sets a free-form attribute. Must only be called before the
// object is published to a Registry.
func (o *Object) SetAttribute(key, value string) {
	o.attributes[key] = value
}

// Attributes returns a copy of the object's attribute map. Insertion order
// is not preserved.
func (o *Object) Attributes() map[string]string {
	out := make(map[string]string, len(o.attributes))
	for k, v := range o.attributes {
		out[k] = v
	}
	return out
}

// References returns the ids of other objects this object names, e.g. an
// unstructured grid naming a separate coordinate array object.
func (o *Object) References() []ID {
	out := make([]ID, len(o.references))
	copy(out, o.references)
	return out
}

// AddReference records that this object names another object by id. Must
// only be called before publication.
func (o *Object) AddReference(id ID) {
	o.references = append(o.references, id)
}

// Complete reports whether every referenced id currently resolves through
// reg. It does not guarantee the referenced objects remain resolvable for
// the lifetime of this object.
func (o *Object) Complete(reg *Registry) bool {
	for _, ref := range o.references {
		if _, ok := reg.Get(ref); !ok {
			return false
		}
	}
	return true
}
