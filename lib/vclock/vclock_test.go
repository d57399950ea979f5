package vclock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b VectorClock
		want Relation
	}{
		{"both empty", New(), New(), Equal},
		{"identical", VectorClock{"c1": 1, "c2": 2}, VectorClock{"c1": 1, "c2": 2}, Equal},
		{"missing counts as zero", VectorClock{"c1": 1}, VectorClock{"c1": 1, "c2": 0}, Equal},
		{"empty before anything", New(), VectorClock{"c1": 1}, Before},
		{"strictly smaller", VectorClock{"c1": 1}, VectorClock{"c1": 2}, Before},
		{"smaller with extra key", VectorClock{"c1": 1}, VectorClock{"c1": 1, "c2": 1}, Before},
		{"after", VectorClock{"c1": 2, "c2": 1}, VectorClock{"c1": 1}, After},
		{"disjoint keys", VectorClock{"c1": 1}, VectorClock{"c2": 1}, Concurrent},
		{"crossed counters", VectorClock{"c1": 2, "c2": 1}, VectorClock{"c1": 1, "c2": 2}, Concurrent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Compare(tc.a, tc.b))
		})
	}
}

func TestCompareIsAntisymmetric(t *testing.T) {
	inverse := map[Relation]Relation{Before: After, After: Before, Equal: Equal, Concurrent: Concurrent}
	clocks := []VectorClock{
		New(),
		{"c1": 1},
		{"c2": 1},
		{"c1": 2, "c2": 1},
		{"c1": 1, "c2": 3},
		{"c1": 2, "c2": 3, "c3": 1},
	}
	for _, a := range clocks {
		for _, b := range clocks {
			assert.Equal(t, inverse[Compare(a, b)], Compare(b, a), "a=%s b=%s", a, b)
		}
	}
}

func TestLessEqualAndLess(t *testing.T) {
	a := VectorClock{"c1": 1}
	b := VectorClock{"c1": 2, "c2": 1}

	assert.True(t, LessEqual(a, b))
	assert.True(t, Less(a, b))
	assert.True(t, LessEqual(a, a))
	assert.False(t, Less(a, a))
	assert.False(t, LessEqual(b, a))
}

func TestIncrementDoesNotMutate(t *testing.T) {
	vc := VectorClock{"c1": 1}
	next := vc.Increment("c1").Increment("c2")

	assert.Equal(t, uint64(1), vc.Get("c1"))
	assert.Equal(t, uint64(0), vc.Get("c2"))
	assert.Equal(t, VectorClock{"c1": 2, "c2": 1}, next)
	assert.Equal(t, After, Compare(next, vc))
}

func TestFromMapAndCopy(t *testing.T) {
	m := map[string]uint64{"c1": 3, "c2": 0}
	vc := FromMap(m)
	assert.Equal(t, VectorClock{"c1": 3}, vc)

	cp := vc.Copy()
	cp["c1"] = 10
	assert.Equal(t, uint64(3), vc.Get("c1"))
	assert.Equal(t, map[string]uint64{"c1": 3}, vc.Map())
}

func TestString(t *testing.T) {
	assert.Equal(t, "{}", New().String())
	assert.Equal(t, "{a=1,b=2,c=3}", VectorClock{"c": 3, "a": 1, "b": 2}.String())
}

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    VectorClock
		wantErr bool
	}{
		{input: "", want: New()},
		{input: "c1=1", want: VectorClock{"c1": 1}},
		{input: " c1 = 2 , c2=1 ", want: VectorClock{"c1": 2, "c2": 1}},
		{input: "c1=0", want: New()},
		{input: "c1", wantErr: true},
		{input: "=1", wantErr: true},
		{input: "c1=-1", wantErr: true},
		{input: "c1=x", wantErr: true},
		{input: "c1=1,c1=2", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := Parse(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
