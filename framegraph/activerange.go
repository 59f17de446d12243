package framegraph

import "github.com/spaghettifunk/vkframegraph/mask"

// RangeKind tags which arm of ActiveRange is populated.
type RangeKind uint8

const (
	RangeInactive RangeKind = iota
	RangeFull
	RangeBuffer
	RangeTexture
)

// ByteRange is a half-open byte span of a buffer.
type ByteRange struct {
	Offset uint64
	Length uint64
}

// ActiveRange is the portion of a resource one usage actually touches:
// the whole resource, a buffer byte range, a texture subresource mask, or
// nothing (a usage that doesn't read/write memory, e.g.
// UsageUnusedArgumentBuffer). Every set-algebra operation is defined on
// this union directly so callers never have to switch on Kind themselves.
type ActiveRange struct {
	Kind      RangeKind
	Buffer    ByteRange
	Subresources mask.Mask
}

// Full constructs the FullResource variant.
func Full() ActiveRange { return ActiveRange{Kind: RangeFull} }

// Inactive constructs the Inactive variant.
func Inactive() ActiveRange { return ActiveRange{Kind: RangeInactive} }

// BufferRange constructs the Buffer(byte-range) variant.
func BufferRange(offset, length uint64) ActiveRange {
	return ActiveRange{Kind: RangeBuffer, Buffer: ByteRange{Offset: offset, Length: length}}
}

// TextureRange constructs the Texture(subresource-mask) variant.
func TextureRange(m mask.Mask) ActiveRange {
	return ActiveRange{Kind: RangeTexture, Subresources: m}
}

// IsEmpty reports whether the range touches nothing.
func (r ActiveRange) IsEmpty() bool {
	switch r.Kind {
	case RangeInactive:
		return true
	case RangeFull:
		return false
	case RangeBuffer:
		return r.Buffer.Length == 0
	case RangeTexture:
		return r.Subresources.IsEmpty()
	default:
		return true
	}
}

// Intersects reports whether a and b overlap. FullResource intersects
// anything non-empty; two byte ranges or two masks use their native
// overlap test; mismatched kinds (buffer vs texture) never intersect.
func (a ActiveRange) Intersects(b ActiveRange) bool {
	if a.Kind == RangeInactive || b.Kind == RangeInactive {
		return false
	}
	if a.Kind == RangeFull {
		return !b.IsEmpty()
	}
	if b.Kind == RangeFull {
		return !a.IsEmpty()
	}
	switch {
	case a.Kind == RangeBuffer && b.Kind == RangeBuffer:
		return a.Buffer.Offset < b.Buffer.Offset+b.Buffer.Length &&
			b.Buffer.Offset < a.Buffer.Offset+a.Buffer.Length
	case a.Kind == RangeTexture && b.Kind == RangeTexture:
		return mask.Intersects(a.Subresources, b.Subresources)
	default:
		return false
	}
}

// Union returns the smallest range covering both a and b. Mixing Full with
// anything yields Full; mixing mismatched buffer/texture kinds panics —
// that combination is always a programmer error (a resource is either a
// buffer or a texture for its entire lifetime).
func Union(a, b ActiveRange) ActiveRange {
	if a.Kind == RangeInactive {
		return b
	}
	if b.Kind == RangeInactive {
		return a
	}
	if a.Kind == RangeFull || b.Kind == RangeFull {
		return Full()
	}
	switch {
	case a.Kind == RangeBuffer && b.Kind == RangeBuffer:
		lo := minU64(a.Buffer.Offset, b.Buffer.Offset)
		hi := maxU64(a.Buffer.Offset+a.Buffer.Length, b.Buffer.Offset+b.Buffer.Length)
		return BufferRange(lo, hi-lo)
	case a.Kind == RangeTexture && b.Kind == RangeTexture:
		return TextureRange(mask.Union(a.Subresources, b.Subresources))
	default:
		panic("framegraph: Union of mismatched ActiveRange kinds")
	}
}

// Subtract returns a with everything in b removed. Subtracting from Full
// is not representable exactly (Full has no mask to subtract from) and is
// only ever used by callers that already know the concrete kind; it
// returns a unchanged in that case, which is conservative (overcounts
// remaining activity) rather than silently wrong.
func Subtract(a, b ActiveRange) ActiveRange {
	if b.Kind == RangeInactive || a.Kind == RangeInactive {
		return a
	}
	if a.Kind == RangeTexture && b.Kind == RangeTexture {
		return TextureRange(mask.Subtract(a.Subresources, b.Subresources))
	}
	if a.Kind == RangeBuffer && b.Kind == RangeBuffer {
		// Byte ranges only subtract exactly when b fully contains a's
		// remainder on one side; otherwise conservatively keep a, which
		// only ever causes an extra (harmless) barrier downstream.
		if b.Buffer.Offset <= a.Buffer.Offset && b.Buffer.Offset+b.Buffer.Length >= a.Buffer.Offset+a.Buffer.Length {
			return Inactive()
		}
		return a
	}
	return a
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
