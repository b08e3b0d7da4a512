package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_DefaultsToFind(t *testing.T) {
	q, err := NewBuilder("users").Eq("name", "L").Build()
	require.NoError(t, err)
	assert.Equal(t, OpFind, q.Op)
	assert.Equal(t, "users", q.Collection)
	assert.True(t, q.HasWhere())
}

func TestBuild_Validation(t *testing.T) {
	tests := []struct {
		name    string
		builder *Builder
		wantErr error
	}{
		{"missing collection", NewBuilder(""), ErrInvalidQuery},
		{"get without id", NewBuilder("users").Get(""), ErrInvalidQuery},
		{"delete without id", NewBuilder("users").DeleteByID(""), ErrInvalidQuery},
		{"replace without doc", NewBuilder("users").Replace("1", nil), ErrInvalidQuery},
		{"insert without doc", NewBuilder("users").Insert(nil), ErrInvalidQuery},
		{"sum invalid field", NewBuilder("users").Sum("age; DROP"), ErrInvalidField},
		{"where invalid field", NewBuilder("users").Eq("na-me", 1), ErrInvalidField},
		{"order invalid field", NewBuilder("users").Asc("1abc"), ErrInvalidField},
		{"pluck invalid field", NewBuilder("users").Pluck("a.b"), ErrInvalidField},
		{"nested invalid field", NewBuilder("users").WhereGroup(Or, func(g *ConditionGroup) {
			g.Where("ok", Equal, 1).Where("not ok", Equal, 2)
		}), ErrInvalidField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBuild_Durability(t *testing.T) {
	for _, d := range []string{"", DurabilityHard, DurabilitySoft} {
		q, err := NewBuilder("users").Durability(d).Insert(map[string]interface{}{}).Build()
		require.NoError(t, err, d)
		assert.Equal(t, d, q.Durability)
	}

	_, err := NewBuilder("users").Durability("bogus").Insert(map[string]interface{}{}).Build()
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = NewBuilder("users").Durability("HARD").Count().Build()
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestBuilder_OrWhereWrapsExisting(t *testing.T) {
	q, err := NewBuilder("users").
		Eq("name", "a").
		Eq("age", 1).
		OrWhere("name", Equal, "b").
		Build()
	require.NoError(t, err)

	require.Equal(t, Or, q.Where.Operator)
	require.Len(t, q.Where.Conditions, 2)
	inner, ok := q.Where.Conditions[0].(*ConditionGroup)
	require.True(t, ok)
	assert.Equal(t, And, inner.Operator)
	assert.Len(t, inner.Conditions, 2)
}

func TestBuilder_NegativePagingNormalized(t *testing.T) {
	q, err := NewBuilder("users").Limit(-5).Offset(-1).Build()
	require.NoError(t, err)
	assert.Zero(t, q.Limit)
	assert.Zero(t, q.Offset)
}

func TestBuilder_MatchIsKeyOrdered(t *testing.T) {
	q, err := NewBuilder("users").Match(Filter{"b": 2, "a": 1}).Build()
	require.NoError(t, err)
	require.Len(t, q.Where.Conditions, 2)
	assert.Equal(t, "a", q.Where.Conditions[0].(Condition).Field)
	assert.Equal(t, "b", q.Where.Conditions[1].(Condition).Field)
}

func TestOp_IsWrite(t *testing.T) {
	for _, op := range []Op{OpInsert, OpReplace, OpDelete, OpDeleteAll} {
		assert.True(t, op.IsWrite(), op)
	}
	for _, op := range []Op{OpFind, OpList, OpGet, OpFirst, OpCount, OpSum, OpAvg} {
		assert.False(t, op.IsWrite(), op)
	}
}

func TestProject(t *testing.T) {
	doc := map[string]interface{}{"id": "1", "name": "L", "age": 30}
	assert.Equal(t, map[string]interface{}{"id": "1", "name": "L"}, Project(doc, []string{"name"}))
	assert.Equal(t, doc, Project(doc, nil))
}
