package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type base struct {
	ID string `doc:"id,omitempty"`
}

type sample struct {
	base
	A       *int              `doc:"a"`
	B       *int              `doc:"b"`
	Name    string            `doc:"name,omitempty"`
	Tags    []string          `doc:"tags"`
	Meta    map[string]string `doc:"meta"`
	Created *time.Time        `doc:"created"`
	Score   float64           `doc:"score"`
	Skipped string            `doc:"-"`
	Plain   string
}

func TestSchemaFor(t *testing.T) {
	s, err := SchemaFor[sample]()
	require.NoError(t, err)

	assert.Equal(t, "sample", s.Name)
	assert.Equal(t, []string{"id", "a", "b", "name", "tags", "meta", "created", "score"}, s.Keys())
	assert.Equal(t, "ID", s.IDField().GoName)

	again, err := SchemaFor[*sample]()
	require.NoError(t, err)
	assert.Same(t, s, again)
}

func TestSchemaFor_Invalid(t *testing.T) {
	type noID struct {
		Name string `doc:"name"`
	}
	type intID struct {
		ID int `doc:"id"`
	}
	type dup struct {
		base
		Other string `doc:"id"`
	}

	_, err := SchemaFor[noID]()
	assert.ErrorIs(t, err, ErrEntityClassNotFound)
	_, err = SchemaFor[intID]()
	assert.ErrorIs(t, err, ErrEntityClassNotFound)
	_, err = SchemaFor[dup]()
	assert.ErrorIs(t, err, ErrEntityClassNotFound)
	_, err = SchemaFor[int]()
	assert.ErrorIs(t, err, ErrEntityClassNotFound)
}

func TestCodec_AbsenceRoundTrips(t *testing.T) {
	c, err := NewCodec[sample]()
	require.NoError(t, err)

	doc := c.Encode(&sample{A: Ptr(1)})
	// score has no omitempty so its zero value is present
	assert.Equal(t, Document{"a": 1, "score": 0.0}, doc)

	e, err := c.Decode(doc)
	require.NoError(t, err)
	require.NotNil(t, e.A)
	assert.Equal(t, 1, *e.A)
	assert.Nil(t, e.B)
	assert.Empty(t, e.ID)
}

func TestCodec_Encode(t *testing.T) {
	c, err := NewCodec[sample]()
	require.NoError(t, err)

	e := &sample{
		base:    base{ID: "x"},
		Name:    "L",
		Tags:    []string{"t"},
		Skipped: "s",
		Plain:   "p",
	}
	doc := c.Encode(e)
	assert.Equal(t, Document{"id": "x", "name": "L", "tags": []string{"t"}, "score": 0.0}, doc)
	assert.Equal(t, "x", doc.ID())

	assert.Empty(t, c.Encode(nil))
}

func TestCodec_DecodeConversions(t *testing.T) {
	c, err := NewCodec[sample]()
	require.NoError(t, err)

	e, err := c.Decode(Document{
		"id":      int64(42),
		"a":       float64(3),
		"name":    "L",
		"tags":    []interface{}{"x", "y"},
		"meta":    map[string]interface{}{"k": "v"},
		"created": "2024-05-01T10:00:00Z",
		"score":   "2.5",
		"b":       nil,
	})
	require.NoError(t, err)

	assert.Equal(t, "42", e.ID)
	assert.Equal(t, 3, *e.A)
	assert.Nil(t, e.B)
	assert.Equal(t, []string{"x", "y"}, e.Tags)
	assert.Equal(t, map[string]string{"k": "v"}, e.Meta)
	require.NotNil(t, e.Created)
	assert.True(t, e.Created.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2.5, e.Score)
}

func TestCodec_UnknownFieldPolicy(t *testing.T) {
	strict, err := NewCodec[sample]()
	require.NoError(t, err)
	_, err = strict.Decode(Document{"a": 1, "legacy": true})
	assert.ErrorIs(t, err, ErrEntityClassNotFound)
	assert.True(t, IsEntityClassNotFound(err))

	lenient, err := NewCodec[sample](WithUnknownFieldPolicy(IgnoreUnknown))
	require.NoError(t, err)
	e, err := lenient.Decode(Document{"a": 1, "legacy": true})
	require.NoError(t, err)
	assert.Equal(t, 1, *e.A)

	// Assign is strict regardless of policy
	err = lenient.Assign(e, map[string]interface{}{"legacy": true})
	assert.ErrorIs(t, err, ErrEntityClassNotFound)
}

func TestCodec_DecodeBadValue(t *testing.T) {
	c, err := NewCodec[sample]()
	require.NoError(t, err)

	_, err = c.Decode(Document{"a": "not a number"})
	assert.ErrorIs(t, err, ErrEntityClassNotFound)
}

func TestCodec_TimeFormat(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 500, time.UTC)

	native, err := NewCodec[sample]()
	require.NoError(t, err)
	assert.Equal(t, ts, native.Encode(&sample{Created: &ts})["created"])

	raw, err := NewCodec[sample](WithTimeFormat(TimeRaw))
	require.NoError(t, err)
	doc := raw.Encode(&sample{Created: &ts})
	assert.Equal(t, "2024-05-01T10:00:00.0000005Z", doc["created"])

	e, err := raw.Decode(doc)
	require.NoError(t, err)
	assert.True(t, e.Created.Equal(ts))
}

func TestCodec_ID(t *testing.T) {
	c, err := NewCodec[sample]()
	require.NoError(t, err)

	e := &sample{}
	assert.Empty(t, c.ID(e))
	c.SetID(e, "abc")
	assert.Equal(t, "abc", c.ID(e))
	assert.Equal(t, "abc", e.ID)
	assert.Empty(t, c.ID(nil))
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "User", EntityName("UserRepository"))
	assert.Equal(t, "User", EntityName("User"))
	assert.Equal(t, "user", CollectionName("User"))
	assert.Equal(t, "blogpost", CollectionName(EntityName("BlogPostRepository")))
}
