package store_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/stevemurr/docstore/document"
	"github.com/stevemurr/docstore/snapshot"
	"github.com/stevemurr/docstore/store"
)

func TestConcurrentUpdatesAreNotLost(t *testing.T) {
	sink := snapshot.NewMemorySink()
	s, err := store.OpenSink(sink)
	require.NoError(t, err)
	_, err = s.Create(store.Users, document.Document{"id": "u1"})
	require.NoError(t, err)

	const writers = 32
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		i := i
		g.Go(func() error {
			_, err := s.Update(store.Users, "u1", document.Document{fmt.Sprintf("f%d", i): i})
			return err
		})
		g.Go(func() error {
			_, err := s.Append(store.Activities, document.Document{"n": i})
			return err
		})
		g.Go(func() error {
			_, err := s.Query(store.Users, nil)
			return err
		})
	}
	require.NoError(t, g.Wait())

	got, err := s.FindByID(store.Users, "u1")
	require.NoError(t, err)
	assert.Len(t, got, writers+1)

	n, err := s.Count(store.Activities, nil)
	require.NoError(t, err)
	assert.Equal(t, writers, n)

	// The last snapshot written reflects every mutation.
	reopened, err := store.OpenSink(sink)
	require.NoError(t, err)
	again, err := reopened.FindByID(store.Users, "u1")
	require.NoError(t, err)
	assert.Equal(t, got, again)
	n, err = reopened.Count(store.Activities, nil)
	require.NoError(t, err)
	assert.Equal(t, writers, n)
}
