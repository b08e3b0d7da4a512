package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/doc4go/pkg/driver"
	"github.com/ammar0144/doc4go/pkg/driver/drivertest"
	"github.com/ammar0144/doc4go/pkg/driver/sqldoc"
	"github.com/ammar0144/doc4go/pkg/query"
)

func openMemory(t *testing.T) *sqldoc.Engine {
	t.Helper()
	e, err := Open(&Config{Path: MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func run(t *testing.T, e *sqldoc.Engine, b *query.Builder) *driver.Result {
	t.Helper()
	res, err := runErr(e, b)
	require.NoError(t, err)
	return res
}

func runErr(e *sqldoc.Engine, b *query.Builder) (*driver.Result, error) {
	q, err := b.Build()
	if err != nil {
		return nil, err
	}
	return e.Run(context.Background(), q, driver.DefaultRunOptions())
}

func TestConfig(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.Error(t, (&Config{Path: "x.db", BusyTimeout: -1}).Validate())

	dsn := (&Config{Path: "data.db", Durability: "soft"}).DSN()
	assert.Contains(t, dsn, "file:data.db?")
	assert.Contains(t, dsn, "journal_mode%28WAL%29")
	assert.Contains(t, dsn, "synchronous%28OFF%29")

	mem := (&Config{Path: MemoryPath}).DSN()
	assert.NotContains(t, mem, "journal_mode")
	assert.Contains(t, mem, "busy_timeout%285000%29")
}

func TestCRUD(t *testing.T) {
	e := openMemory(t)

	res := run(t, e, query.NewBuilder("users").Insert(map[string]interface{}{"name": "L"}))
	require.Len(t, res.Write.GeneratedKeys, 1)
	id := res.Write.GeneratedKeys[0]

	got := run(t, e, query.NewBuilder("users").Get(id))
	require.NotNil(t, got.Document)
	assert.Equal(t, "L", got.Document["name"])
	assert.Equal(t, id, got.Document.ID())

	_, err := runErr(e, query.NewBuilder("users").Insert(map[string]interface{}{"id": id}))
	assert.True(t, driver.IsDuplicateID(err))

	rep := run(t, e, query.NewBuilder("users").Replace(id, map[string]interface{}{"name": "M", "age": 30}))
	assert.True(t, rep.Write.Matched())
	rep = run(t, e, query.NewBuilder("users").Replace("missing", map[string]interface{}{"name": "M"}))
	assert.False(t, rep.Write.Matched())

	got = run(t, e, query.NewBuilder("users").Get(id))
	assert.Equal(t, "M", got.Document["name"])
	assert.Equal(t, 30.0, got.Document["age"])

	del := run(t, e, query.NewBuilder("users").DeleteByID(id))
	assert.Equal(t, int64(1), del.Write.Deleted)
	got = run(t, e, query.NewBuilder("users").Get(id))
	assert.Nil(t, got.Document)
}

func TestQueries(t *testing.T) {
	e := openMemory(t)
	people := []map[string]interface{}{
		{"id": "a", "name": "Ann", "age": 30, "admin": true},
		{"id": "b", "name": "Bob", "age": 20},
		{"id": "c", "name": "Cid", "age": 40},
		{"id": "d", "name": "Dee", "age": 20},
	}
	for _, p := range people {
		run(t, e, query.NewBuilder("people").Insert(p))
	}

	count := run(t, e, query.NewBuilder("people").Count())
	assert.Equal(t, int64(4), count.Scalar)

	first := run(t, e, query.NewBuilder("people").Desc("age").First())
	assert.Equal(t, "c", first.Document.ID())

	list := run(t, e, query.NewBuilder("people").Asc("age").Asc("id").Limit(2).Offset(1).List())
	require.Len(t, list.Documents, 2)
	assert.Equal(t, "d", list.Documents[0].ID())
	assert.Equal(t, "a", list.Documents[1].ID())

	young := run(t, e, query.NewBuilder("people").Where("age", query.LessThan, 25).Find())
	docs, err := driver.Drain(context.Background(), young.Stream)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	like := run(t, e, query.NewBuilder("people").Where("name", query.Like, "C%").List())
	require.Len(t, like.Documents, 1)
	assert.Equal(t, "c", like.Documents[0].ID())

	admins := run(t, e, query.NewBuilder("people").Eq("admin", true).Count())
	assert.Equal(t, int64(1), admins.Scalar)

	missing := run(t, e, query.NewBuilder("people").Where("admin", query.IsNull, nil).Count())
	assert.Equal(t, int64(3), missing.Scalar)

	in := run(t, e, query.NewBuilder("people").Where("id", query.In, []string{"a", "b"}).Count())
	assert.Equal(t, int64(2), in.Scalar)

	sum := run(t, e, query.NewBuilder("people").Sum("age"))
	assert.Equal(t, 110.0, sum.Scalar)
	avg := run(t, e, query.NewBuilder("people").Eq("age", 20).Avg("age"))
	assert.Equal(t, 20.0, avg.Scalar)
	none := run(t, e, query.NewBuilder("people").Eq("age", 99).Avg("age"))
	assert.Nil(t, none.Scalar)
	zero := run(t, e, query.NewBuilder("people").Eq("age", 99).Sum("age"))
	assert.Equal(t, 0.0, zero.Scalar)

	plucked := run(t, e, query.NewBuilder("people").Get("a").Pluck("name"))
	assert.Len(t, plucked.Document, 2)

	cleared := run(t, e, query.NewBuilder("people").Eq("age", 20).DeleteAll())
	assert.Equal(t, int64(2), cleared.Write.Deleted)
	cleared = run(t, e, query.NewBuilder("people").DeleteAll())
	assert.Equal(t, int64(2), cleared.Write.Deleted)
}

func TestTimes(t *testing.T) {
	e := openMemory(t)
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)
	run(t, e, query.NewBuilder("events").Insert(map[string]interface{}{"id": "1", "at": early}))
	run(t, e, query.NewBuilder("events").Insert(map[string]interface{}{"id": "2", "at": late}))

	res := run(t, e, query.NewBuilder("events").Where("at", query.GreaterThan, early.Add(time.Hour)).List())
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "2", res.Documents[0].ID())
}

func TestInvalidCollection(t *testing.T) {
	e := openMemory(t)
	_, err := runErr(e, query.NewBuilder("users; DROP TABLE x").Count())
	assert.ErrorIs(t, err, query.ErrInvalidQuery)
}

func TestConformance(t *testing.T) {
	drivertest.Run(t, openMemory(t))
}
