package engine

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvgo-db/kvgo/wire"
)

func TestComparePrimitive(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"equal strings", "a", "a", 0},
		{"string order", "a", "b", -1},
		{"equal numbers", float64(3), float64(3), 0},
		{"number order", float64(1), float64(2), -1},
		{"mixed int widths", int64(5), float64(5), 0},
		{"negative before positive", float64(-1), float64(1), -1},
		{"bool order", false, true, -1},
		{"nil first", nil, false, -1},
		{"numbers before strings", float64(99), "1", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, comparePrimitive(tt.a, tt.b))
			assert.Equal(t, -tt.want, comparePrimitive(tt.b, tt.a))
		})
	}
}

func TestStructuredCompareUsesIndexFieldsOnly(t *testing.T) {
	cmp := newKeyComparer(false, &wire.IndexSpecification{
		IndexFields: []wire.IndexFieldSpecification{
			{FieldName: "region", AscendingSortOrder: true},
			{FieldName: "day", AscendingSortOrder: true},
		},
	})

	a := map[string]any{"region": "eu", "day": float64(1), "note": "zzz"}
	b := map[string]any{"region": "eu", "day": float64(1), "note": "aaa"}
	assert.Equal(t, 0, cmp.compare(a, b), "ride-along fields must not affect equality")

	c := map[string]any{"region": "eu", "day": float64(2)}
	assert.Equal(t, -1, cmp.compare(a, c))

	d := map[string]any{"region": "us", "day": float64(0)}
	assert.Equal(t, -1, cmp.compare(a, d), "earlier field wins regardless of later fields")
}

func TestStructuredCompareDescendingField(t *testing.T) {
	cmp := newKeyComparer(false, &wire.IndexSpecification{
		IndexFields: []wire.IndexFieldSpecification{
			{FieldName: "rank", AscendingSortOrder: false},
		},
	})

	lo := map[string]any{"rank": float64(1)}
	hi := map[string]any{"rank": float64(9)}
	assert.Equal(t, 1, cmp.compare(lo, hi), "descending field inverts the order")
}

func TestStructuredCompareWithoutSpecUsesAllFields(t *testing.T) {
	cmp := newKeyComparer(false, nil)

	a := map[string]any{"x": "1", "y": "1"}
	b := map[string]any{"x": "1", "y": "2"}
	assert.Equal(t, -1, cmp.compare(a, b))
	assert.Equal(t, 0, cmp.compare(a, map[string]any{"x": "1", "y": "1"}))
}

// orderKey must sort bytewise exactly the way compare sorts values.
func TestOrderKeyMatchesCompare(t *testing.T) {
	cmp := newKeyComparer(true, nil)

	values := []any{
		nil,
		false,
		true,
		float64(-1000.5),
		float64(-1),
		float64(0),
		float64(0.5),
		float64(1),
		float64(987654),
		"",
		"a",
		"a\x00b",
		"ab",
		"b",
	}

	encoded := make([][]byte, len(values))
	for i, v := range values {
		encoded[i] = cmp.orderKey(v)
	}

	for i := range values {
		for j := range values {
			want := comparePrimitive(values[i], values[j])
			got := bytes.Compare(encoded[i], encoded[j])
			assert.Equalf(t, want, got, "orderKey order mismatch between %v and %v", values[i], values[j])
		}
	}
}

func TestOrderKeyStructuredDescending(t *testing.T) {
	cmp := newKeyComparer(false, &wire.IndexSpecification{
		IndexFields: []wire.IndexFieldSpecification{
			{FieldName: "score", AscendingSortOrder: false},
			{FieldName: "name", AscendingSortOrder: true},
		},
	})

	rows := []map[string]any{
		{"score": float64(10), "name": "c"},
		{"score": float64(10), "name": "a"},
		{"score": float64(50), "name": "b"},
		{"score": float64(-3), "name": "z"},
	}

	sorted := make([]map[string]any, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(cmp.orderKey(sorted[i]), cmp.orderKey(sorted[j])) < 0
	})

	require.Len(t, sorted, 4)
	assert.Equal(t, float64(50), sorted[0]["score"])
	assert.Equal(t, "a", sorted[1]["name"])
	assert.Equal(t, "c", sorted[2]["name"])
	assert.Equal(t, float64(-3), sorted[3]["score"])

	for i := range sorted {
		for j := range sorted {
			want := cmp.compare(sorted[i], sorted[j])
			got := bytes.Compare(cmp.orderKey(sorted[i]), cmp.orderKey(sorted[j]))
			assert.Equal(t, want, got)
		}
	}
}
