package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	doc := map[string]interface{}{
		"id":    "1",
		"name":  "Lorem",
		"age":   30,
		"score": 2.5,
	}

	tests := []struct {
		name  string
		build func(b *Builder) *Builder
		want  bool
	}{
		{"empty filter", func(b *Builder) *Builder { return b }, true},
		{"equal", func(b *Builder) *Builder { return b.Eq("name", "Lorem") }, true},
		{"numeric kinds compare", func(b *Builder) *Builder { return b.Eq("age", 30.0) }, true},
		{"not equal", func(b *Builder) *Builder { return b.Where("age", NotEqual, 30) }, false},
		{"greater", func(b *Builder) *Builder { return b.Where("age", GreaterThan, 18) }, true},
		{"less or equal", func(b *Builder) *Builder { return b.Where("score", LessThanOrEqual, 2.5) }, true},
		{"like prefix", func(b *Builder) *Builder { return b.Where("name", Like, "Lo%") }, true},
		{"like single", func(b *Builder) *Builder { return b.Where("name", Like, "L_rem") }, true},
		{"like metachar", func(b *Builder) *Builder { return b.Where("name", Like, "L.rem") }, false},
		{"not like", func(b *Builder) *Builder { return b.Where("name", NotLike, "X%") }, true},
		{"in", func(b *Builder) *Builder { return b.Where("age", In, []int{1, 30}) }, true},
		{"not in", func(b *Builder) *Builder { return b.Where("age", NotIn, []int{1, 30}) }, false},
		{"between", func(b *Builder) *Builder { return b.Where("age", Between, []int{20, 40}) }, true},
		{"not between", func(b *Builder) *Builder { return b.Where("age", NotBetween, []int{20, 40}) }, false},
		{"missing is null", func(b *Builder) *Builder { return b.Where("email", IsNull, nil) }, true},
		{"present is not null", func(b *Builder) *Builder { return b.Where("name", IsNotNull, nil) }, true},
		{"missing never compares", func(b *Builder) *Builder { return b.Where("email", NotEqual, "x") }, false},
		{"and fails", func(b *Builder) *Builder { return b.Eq("name", "Lorem").Eq("age", 1) }, false},
		{"or recovers", func(b *Builder) *Builder { return b.Eq("age", 1).OrWhere("name", Equal, "Lorem") }, true},
		{"group", func(b *Builder) *Builder {
			return b.WhereGroup(Or, func(g *ConditionGroup) {
				g.Where("age", Equal, 1).Where("age", Equal, 30)
			})
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := tt.build(NewBuilder("users")).Build()
			require.NoError(t, err)
			assert.Equal(t, tt.want, Match(doc, q.Where))
		})
	}
}

func TestCompare(t *testing.T) {
	now := time.Now()
	name := "b"

	assert.Equal(t, 0, Compare(nil, nil))
	assert.Equal(t, -1, Compare(nil, 1))
	assert.Equal(t, -1, Compare(false, true))
	assert.Equal(t, 1, Compare(int64(3), 2.5))
	assert.Equal(t, -1, Compare("a", "b"))
	assert.Equal(t, 0, Compare(&name, "b"))
	assert.Equal(t, -1, Compare(now, now.Add(time.Second)))
	// numbers sort before strings
	assert.Equal(t, -1, Compare(10, "1"))
}

func TestToFloat(t *testing.T) {
	f, ok := ToFloat(uint8(4))
	assert.True(t, ok)
	assert.Equal(t, 4.0, f)

	_, ok = ToFloat("4")
	assert.False(t, ok)

	_, ok = ToFloat(nil)
	assert.False(t, ok)
}
