package mem

import (
	"context"
	"testing"

	"vellum/hangar"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMem(t *testing.T) {
	maker := func(t *testing.T) hangar.Store {
		return NewHangar()
	}
	hangar.TestStore(t, maker)
}

func TestMem_ValuesAreCopied(t *testing.T) {
	db := NewHangar()
	defer func() { _ = db.Teardown() }()
	val := []byte("value")
	require.NoError(t, db.Apply(context.Background(), hangar.Batch{
		Position:  1,
		Mutations: []hangar.Mutation{{Table: 1, Key: []byte("k"), Value: val}},
	}))
	val[0] = 'X'
	got, err := db.Get(context.Background(), 1, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got.MustGet())

	got.MustGet()[0] = 'Y'
	again, err := db.Get(context.Background(), 1, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), again.MustGet())
}

func TestMem_CloseTwice(t *testing.T) {
	db := NewHangar()
	assert.NoError(t, db.Close())
	assert.Error(t, db.Close())
}
