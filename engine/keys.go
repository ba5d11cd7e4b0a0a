package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kvgo-db/kvgo/wire"
)

// keyComparer orders decoded JSON keys. Primitive keys compare directly;
// structured keys compare field-by-field per the store's IndexSpecification,
// with unspecified fields treated as ride-along metadata invisible to the
// comparison.
type keyComparer struct {
	primitive bool
	fields    []wire.IndexFieldSpecification
}

func newKeyComparer(primitive bool, spec *wire.IndexSpecification) keyComparer {
	c := keyComparer{primitive: primitive}
	if spec != nil {
		c.fields = spec.IndexFields
	}
	return c
}

// compare returns -1, 0 or 1. Keys of mismatched primitive types order by a
// fixed type rank so the total order stays consistent.
func (c keyComparer) compare(a, b any) int {
	if c.primitive {
		return comparePrimitive(a, b)
	}
	am, aok := a.(map[string]any)
	bm, bok := b.(map[string]any)
	if !aok || !bok {
		return comparePrimitive(a, b)
	}
	for _, f := range c.indexFields(am) {
		r := comparePrimitive(am[f.FieldName], bm[f.FieldName])
		if r != 0 {
			if !f.AscendingSortOrder {
				return -r
			}
			return r
		}
	}
	return 0
}

// indexFields returns the load-bearing fields. Without an explicit
// specification every field participates, ascending, in name order.
func (c keyComparer) indexFields(sample map[string]any) []wire.IndexFieldSpecification {
	if len(c.fields) > 0 {
		return c.fields
	}
	names := make([]string, 0, len(sample))
	for name := range sample {
		names = append(names, name)
	}
	sort.Strings(names)
	all := make([]wire.IndexFieldSpecification, len(names))
	for i, name := range names {
		all[i] = wire.IndexFieldSpecification{FieldName: name, AscendingSortOrder: true}
	}
	return all
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64, float32, int, int32, int64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func comparePrimitive(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 0:
		return 0
	case 1:
		av, bv := a.(bool), b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case 2:
		av, _ := asFloat(a)
		bv, _ := asFloat(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case 3:
		return strings.Compare(a.(string), b.(string))
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

// orderKey builds an order-preserving byte encoding of the comparable part
// of a key. Used as the on-disk bucket key so bbolt iterates in index order.
func (c keyComparer) orderKey(k any) []byte {
	var buf bytes.Buffer
	if c.primitive {
		encodePrimitive(&buf, k, true)
		return buf.Bytes()
	}
	km, ok := k.(map[string]any)
	if !ok {
		encodePrimitive(&buf, k, true)
		return buf.Bytes()
	}
	for _, f := range c.indexFields(km) {
		encodePrimitive(&buf, km[f.FieldName], f.AscendingSortOrder)
	}
	return buf.Bytes()
}

// encodePrimitive appends a self-delimiting, memcmp-ordered encoding of one
// scalar: a type-rank byte, then the payload. Descending fields are bitwise
// inverted.
func encodePrimitive(buf *bytes.Buffer, v any, ascending bool) {
	start := buf.Len()
	buf.WriteByte(byte(typeRank(v)))
	switch typeRank(v) {
	case 1:
		if v.(bool) {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case 2:
		f, _ := asFloat(v)
		bits := math.Float64bits(f)
		// Flip for total order: negatives invert fully, positives set the
		// sign bit.
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], bits)
		buf.Write(b[:])
	case 3:
		s := v.(string)
		for i := 0; i < len(s); i++ {
			if s[i] == 0x00 {
				buf.WriteByte(0x00)
				buf.WriteByte(0xff)
				continue
			}
			buf.WriteByte(s[i])
		}
		buf.WriteByte(0x00)
		buf.WriteByte(0x00)
	case 4:
		s := fmt.Sprint(v)
		buf.WriteString(s)
		buf.WriteByte(0x00)
		buf.WriteByte(0x00)
	}
	if !ascending {
		b := buf.Bytes()
		for i := start; i < len(b); i++ {
			b[i] = ^b[i]
		}
	}
}
