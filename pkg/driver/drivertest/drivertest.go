// Package drivertest is a conformance suite every driver.Driver must pass.
package drivertest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/doc4go/pkg/driver"
	"github.com/ammar0144/doc4go/pkg/query"
)

// Run exercises d against a fresh collection per subtest
func Run(t *testing.T, d driver.Driver) {
	t.Helper()
	prefix := fmt.Sprintf("t%d_", time.Now().UnixNano())

	t.Run("InsertGetDelete", func(t *testing.T) {
		c := prefix + "crud"
		res := exec(t, d, query.NewBuilder(c).Insert(map[string]interface{}{"name": "L"}))
		require.Equal(t, driver.KindWrite, res.Kind)
		require.Len(t, res.Write.GeneratedKeys, 1)
		id := res.Write.GeneratedKeys[0]

		got := exec(t, d, query.NewBuilder(c).Get(id))
		require.Equal(t, driver.KindDocument, got.Kind)
		require.NotNil(t, got.Document)
		assert.Equal(t, "L", got.Document["name"])

		del := exec(t, d, query.NewBuilder(c).DeleteByID(id))
		assert.True(t, del.Write.Matched())

		got = exec(t, d, query.NewBuilder(c).Get(id))
		assert.Nil(t, got.Document)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		c := prefix + "dup"
		exec(t, d, query.NewBuilder(c).Insert(map[string]interface{}{"id": "same"}))
		_, err := run(d, query.NewBuilder(c).Insert(map[string]interface{}{"id": "same"}))
		assert.True(t, driver.IsDuplicateID(err), "got %v", err)
	})

	t.Run("ReplaceMatches", func(t *testing.T) {
		c := prefix + "replace"
		exec(t, d, query.NewBuilder(c).Insert(map[string]interface{}{"id": "1", "n": 1}))

		res := exec(t, d, query.NewBuilder(c).Replace("1", map[string]interface{}{"n": 2}))
		assert.True(t, res.Write.Matched())
		res = exec(t, d, query.NewBuilder(c).Replace("1", map[string]interface{}{"n": 2}))
		assert.True(t, res.Write.Matched(), "identical replace still matches")
		res = exec(t, d, query.NewBuilder(c).Replace("2", map[string]interface{}{"n": 2}))
		assert.False(t, res.Write.Matched())
	})

	t.Run("OrderedReads", func(t *testing.T) {
		c := prefix + "reads"
		for i, age := range []int{30, 20, 40} {
			exec(t, d, query.NewBuilder(c).Insert(map[string]interface{}{"id": fmt.Sprint(i), "age": age}))
		}

		count := exec(t, d, query.NewBuilder(c).Count())
		assert.Equal(t, int64(3), count.Scalar)

		lowest := exec(t, d, query.NewBuilder(c).Asc("age").First())
		assert.Equal(t, "1", lowest.Document.ID())
		highest := exec(t, d, query.NewBuilder(c).Desc("age").First())
		assert.Equal(t, "2", highest.Document.ID())

		list := exec(t, d, query.NewBuilder(c).Where("age", query.GreaterThanOrEqual, 30).Asc("age").List())
		require.Len(t, list.Documents, 2)
		assert.Equal(t, "0", list.Documents[0].ID())

		stream := exec(t, d, query.NewBuilder(c).Asc("id").Find())
		require.Equal(t, driver.KindStream, stream.Kind)
		docs, err := driver.Drain(context.Background(), stream.Stream)
		require.NoError(t, err)
		assert.Len(t, docs, 3)

		sum := exec(t, d, query.NewBuilder(c).Sum("age"))
		assert.InDelta(t, 90.0, sum.Scalar, 0.0001)
	})

	t.Run("DeleteAll", func(t *testing.T) {
		c := prefix + "clear"
		for i := 0; i < 3; i++ {
			exec(t, d, query.NewBuilder(c).Insert(map[string]interface{}{"n": i}))
		}
		res := exec(t, d, query.NewBuilder(c).DeleteAll())
		assert.Equal(t, int64(3), res.Write.Deleted)

		count := exec(t, d, query.NewBuilder(c).Count())
		assert.Equal(t, int64(0), count.Scalar)
	})
}

func run(d driver.Driver, b *query.Builder) (*driver.Result, error) {
	q, err := b.Build()
	if err != nil {
		return nil, err
	}
	return d.Run(context.Background(), q, driver.DefaultRunOptions())
}

func exec(t *testing.T, d driver.Driver, b *query.Builder) *driver.Result {
	t.Helper()
	res, err := run(d, b)
	require.NoError(t, err)
	return res
}
