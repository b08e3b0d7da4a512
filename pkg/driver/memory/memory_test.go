package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/doc4go/pkg/document"
	"github.com/ammar0144/doc4go/pkg/driver"
	"github.com/ammar0144/doc4go/pkg/driver/drivertest"
	"github.com/ammar0144/doc4go/pkg/query"
)

func newDriver(t *testing.T) *Driver {
	t.Helper()
	Drop(t.Name())
	d := New(t.Name())
	t.Cleanup(func() {
		d.Close()
		Drop(t.Name())
	})
	return d
}

func run(t *testing.T, d *Driver, b *query.Builder) *driver.Result {
	t.Helper()
	q, err := b.Build()
	require.NoError(t, err)
	res, err := d.Run(context.Background(), q, driver.DefaultRunOptions())
	require.NoError(t, err)
	return res
}

func TestInsertGeneratesID(t *testing.T) {
	d := newDriver(t)

	res := run(t, d, query.NewBuilder("users").Insert(map[string]interface{}{"name": "L"}))
	require.Equal(t, driver.KindWrite, res.Kind)
	require.Len(t, res.Write.GeneratedKeys, 1)
	id := res.Write.GeneratedKeys[0]
	assert.NotEmpty(t, id)

	got := run(t, d, query.NewBuilder("users").Get(id))
	require.Equal(t, driver.KindDocument, got.Kind)
	assert.Equal(t, "L", got.Document["name"])
	assert.Equal(t, id, got.Document.ID())
}

func TestInsertDuplicate(t *testing.T) {
	d := newDriver(t)
	run(t, d, query.NewBuilder("users").Insert(map[string]interface{}{"id": "1"}))

	q, err := query.NewBuilder("users").Insert(map[string]interface{}{"id": "1"}).Build()
	require.NoError(t, err)
	_, err = d.Run(context.Background(), q, driver.DefaultRunOptions())
	assert.True(t, driver.IsDuplicateID(err))
}

func TestGetMissing(t *testing.T) {
	d := newDriver(t)
	res := run(t, d, query.NewBuilder("users").Get("nope"))
	assert.Equal(t, driver.KindDocument, res.Kind)
	assert.Nil(t, res.Document)
}

func TestReplace(t *testing.T) {
	d := newDriver(t)
	run(t, d, query.NewBuilder("users").Insert(map[string]interface{}{"id": "1", "name": "a"}))

	res := run(t, d, query.NewBuilder("users").Replace("1", map[string]interface{}{"name": "b"}))
	assert.Equal(t, int64(1), res.Write.Replaced)

	res = run(t, d, query.NewBuilder("users").Replace("1", map[string]interface{}{"name": "b"}))
	assert.Equal(t, int64(1), res.Write.Unchanged)
	assert.True(t, res.Write.Matched())

	res = run(t, d, query.NewBuilder("users").Replace("2", map[string]interface{}{"name": "b"}))
	assert.False(t, res.Write.Matched())

	got := run(t, d, query.NewBuilder("users").Get("1"))
	assert.Equal(t, "b", got.Document["name"])
}

func TestDeletes(t *testing.T) {
	d := newDriver(t)
	for _, id := range []string{"1", "2", "3"} {
		run(t, d, query.NewBuilder("users").Insert(map[string]interface{}{"id": id, "n": id}))
	}

	res := run(t, d, query.NewBuilder("users").DeleteByID("2"))
	assert.Equal(t, int64(1), res.Write.Deleted)
	res = run(t, d, query.NewBuilder("users").DeleteByID("2"))
	assert.False(t, res.Write.Matched())

	res = run(t, d, query.NewBuilder("users").Eq("n", "3").DeleteAll())
	assert.Equal(t, int64(1), res.Write.Deleted)

	res = run(t, d, query.NewBuilder("users").DeleteAll())
	assert.Equal(t, int64(1), res.Write.Deleted)

	count := run(t, d, query.NewBuilder("users").Count())
	assert.Equal(t, int64(0), count.Scalar)
}

func TestReads(t *testing.T) {
	d := newDriver(t)
	ages := map[string]int{"a": 30, "b": 20, "c": 40, "d": 20}
	for _, id := range []string{"a", "b", "c", "d"} {
		run(t, d, query.NewBuilder("users").Insert(map[string]interface{}{"id": id, "age": ages[id]}))
	}

	first := run(t, d, query.NewBuilder("users").Desc("age").First())
	assert.Equal(t, "c", first.Document.ID())

	list := run(t, d, query.NewBuilder("users").Asc("age").Asc("id").Limit(2).Offset(1).List())
	require.Equal(t, driver.KindDocuments, list.Kind)
	require.Len(t, list.Documents, 2)
	assert.Equal(t, "d", list.Documents[0].ID())
	assert.Equal(t, "a", list.Documents[1].ID())

	stream := run(t, d, query.NewBuilder("users").Where("age", query.LessThan, 25).Find())
	require.Equal(t, driver.KindStream, stream.Kind)
	docs, err := driver.Drain(context.Background(), stream.Stream)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	sum := run(t, d, query.NewBuilder("users").Sum("age"))
	assert.Equal(t, 110.0, sum.Scalar)
	avg := run(t, d, query.NewBuilder("users").Eq("age", 20).Avg("age"))
	assert.Equal(t, 20.0, avg.Scalar)
	none := run(t, d, query.NewBuilder("users").Eq("age", 99).Avg("age"))
	assert.Nil(t, none.Scalar)

	plucked := run(t, d, query.NewBuilder("users").Get("a").Pluck("missing"))
	assert.Equal(t, document.Document{"id": "a"}, plucked.Document)
}

func TestIsolation(t *testing.T) {
	d := newDriver(t)
	tags := []interface{}{"x"}
	run(t, d, query.NewBuilder("users").Insert(map[string]interface{}{"id": "1", "tags": tags}))
	tags[0] = "mutated"

	got := run(t, d, query.NewBuilder("users").Get("1"))
	assert.Equal(t, []interface{}{"x"}, got.Document["tags"])
}

func TestTimesRoundTrip(t *testing.T) {
	d := newDriver(t)
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	run(t, d, query.NewBuilder("events").Insert(map[string]interface{}{"id": "1", "at": ts}))

	got := run(t, d, query.NewBuilder("events").Get("1"))
	at, ok := got.Document["at"].(time.Time)
	require.True(t, ok)
	assert.True(t, at.Equal(ts))
}

func TestSharedDatabase(t *testing.T) {
	d := newDriver(t)
	run(t, d, query.NewBuilder("users").Insert(map[string]interface{}{"id": "1"}))

	other := New(t.Name())
	q, err := query.NewBuilder("users").Count().Build()
	require.NoError(t, err)
	res, err := other.Run(context.Background(), q, driver.DefaultRunOptions())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Scalar)
}

func TestClosed(t *testing.T) {
	d := newDriver(t)
	require.NoError(t, d.Close())

	q, err := query.NewBuilder("users").Count().Build()
	require.NoError(t, err)
	_, err = d.Run(context.Background(), q, driver.DefaultRunOptions())
	assert.ErrorIs(t, err, driver.ErrClosed)
	assert.ErrorIs(t, d.Ping(context.Background()), driver.ErrClosed)
}

func TestConformance(t *testing.T) {
	drivertest.Run(t, newDriver(t))
}
