package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/doc4go/pkg/adapter"
	"github.com/ammar0144/doc4go/pkg/config"
	"github.com/ammar0144/doc4go/pkg/document"
	"github.com/ammar0144/doc4go/pkg/driver/memory"
	"github.com/ammar0144/doc4go/pkg/query"
)

type Account struct {
	Base
	Email string `doc:"email,omitempty"`
}

func (*Account) CollectionName() string { return "accounts" }

// Plain does not embed Base
type Plain struct {
	Key   string `doc:"id"`
	Value int    `doc:"value"`
}

type Person struct {
	Base
	Name *string `doc:"name"`
}

type named string

func (n named) String() string { return string(n) }

func TestEqual(t *testing.T) {
	a := &User{Base: Base{ID: "1"}, Name: document.Ptr("a")}
	same := &User{Base: Base{ID: "1"}, Name: document.Ptr("other")}
	other := &User{Base: Base{ID: "2"}}
	fresh1, fresh2 := &User{}, &User{}

	assert.True(t, Equal(a, same))
	assert.True(t, Equal(a, a))
	assert.False(t, Equal(a, other))
	assert.False(t, Equal(fresh1, fresh2))
	assert.True(t, Equal(fresh1, fresh1))
	assert.False(t, Equal(a, &Account{Base: Base{ID: "1"}}))
	assert.False(t, Equal(a, nil))

	assert.True(t, Equal(Plain{Key: "k"}, Plain{Key: "k", Value: 2}))
	assert.False(t, Equal(Plain{}, Plain{}))
	assert.False(t, Equal("1", "1"))
}

func TestBase(t *testing.T) {
	var e Entity = &Base{}
	assert.False(t, e.(*Base).Persisted())
	e.SetID("x")
	assert.Equal(t, "x", e.GetID())
	assert.True(t, e.(*Base).Persisted())
}

func TestBuild(t *testing.T) {
	u, err := Build[User](map[string]any{"name": "L", "age": "30"})
	require.NoError(t, err)
	assert.Equal(t, "L", *u.Name)
	assert.Equal(t, 30, *u.Age)
	assert.Empty(t, u.ID)

	_, err = Build[User](map[string]any{"nickname": "el"})
	assert.True(t, IsEntityClassNotFound(err))
}

func TestNormalizeID(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name    string
		in      any
		want    string
		wantErr bool
	}{
		{"string", "abc", "abc", false},
		{"int", 42, "42", false},
		{"int64", int64(-7), "-7", false},
		{"uint8", uint8(9), "9", false},
		{"uuid", id, id.String(), false},
		{"stringer", named("n-1"), "n-1", false},
		{"nil", nil, "", true},
		{"empty", "", "", true},
		{"nil uuid", uuid.Nil, "", true},
		{"float", 1.5, "", true},
		{"entity", &User{Base: Base{ID: "1"}}, "", true},
		{"entity value", Plain{Key: "1"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeID(tt.in)
			if tt.wantErr {
				assert.True(t, IsEntityIDNotFound(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Naming(t *testing.T) {
	memory.Drop(t.Name())
	defer memory.Drop(t.Name())
	a := adapter.New(memory.New(t.Name()))

	_, err := New[User](nil)
	assert.ErrorIs(t, err, ErrMissingAdapter)

	users, err := New[User](a)
	require.NoError(t, err)
	assert.Equal(t, "user", users.Collection())
	assert.Equal(t, "User", users.EntityName())
	assert.Same(t, a, users.Adapter())

	users, err = New[User](a, WithName("UserRepository"))
	require.NoError(t, err)
	assert.Equal(t, "user", users.Collection())

	_, err = New[User](a, WithName("AccountRepository"))
	assert.True(t, IsEntityClassNotFound(err))

	accounts, err := New[Account](a)
	require.NoError(t, err)
	assert.Equal(t, "accounts", accounts.Collection())

	people, err := New[Person](a, WithCollection("people"))
	require.NoError(t, err)
	assert.Equal(t, "people", people.Collection())

	members, err := New[Person](a, WithName("MemberRepository"), WithEntityName("Member"))
	require.NoError(t, err)
	assert.Equal(t, "member", members.Collection())
	assert.Equal(t, "Member", members.EntityName())

	_, err = New[User](a, WithCollection("bad name"))
	assert.ErrorIs(t, err, query.ErrInvalidField)

	_, err = New[struct{ Name string }](a)
	assert.True(t, IsEntityClassNotFound(err))
}

func TestDefine(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)
	memory.Drop(t.Name())
	defer memory.Drop(t.Name())

	_, err := Define[User]()
	assert.ErrorIs(t, err, ErrNotConfigured)

	config.Use(nil, nil)
	_, err = Define[User]()
	assert.ErrorIs(t, err, ErrMissingAdapter)

	first := adapter.New(memory.New(t.Name()))
	config.Use(nil, first)
	users, err := Define[User](WithCollection("users"))
	require.NoError(t, err)
	assert.Same(t, first, users.Adapter())

	// reconfiguring leaves defined repositories bound to their adapter
	require.NoError(t, config.Configure(func(c *config.Config) { c.Database = t.Name() + "_next" }))
	defer memory.Drop(t.Name() + "_next")
	next, err := Define[User](WithCollection("users"))
	require.NoError(t, err)
	assert.NotSame(t, users.Adapter(), next.Adapter())
	assert.Same(t, first, users.Adapter())

	ctx := context.Background()
	require.NoError(t, users.Create(ctx, newUser("L")))
	n, err := next.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
