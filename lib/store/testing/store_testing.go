// Package testing provides a conformance test suite for store.IStore implementations.
package testing

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dRate/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreFactory creates a new, empty store
type StoreFactory func(t *testing.T) store.IStore

// RunIStoreTests runs the conformance suite against the stores created by factory
func RunIStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("HSet&HGetAll", func(t *testing.T) {
			s := factory(t)

			_, ok, err := s.HGetAll("/rating/nobody")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.HSet("/rating/bob", map[string]string{
				"rating":  "5",
				"choices": "[5]",
				"clocks":  `[{"c0":1}]`,
			}))
			fields, ok, err := s.HGetAll("/rating/bob")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, map[string]string{"rating": "5", "choices": "[5]", "clocks": `[{"c0":1}]`}, fields)

			// partial update keeps untouched fields
			require.NoError(t, s.HSet("/rating/bob", map[string]string{"rating": "4"}))
			fields, _, err = s.HGetAll("/rating/bob")
			require.NoError(t, err)
			assert.Equal(t, "4", fields["rating"])
			assert.Equal(t, "[5]", fields["choices"])
		})

		t.Run("Delete", func(t *testing.T) {
			s := factory(t)

			deleted, err := s.Delete("/rating/alice")
			require.NoError(t, err)
			assert.False(t, deleted)

			require.NoError(t, s.HSet("/rating/alice", map[string]string{"rating": "2"}))
			deleted, err = s.Delete("/rating/alice")
			require.NoError(t, err)
			assert.True(t, deleted)

			_, ok, err := s.HGetAll("/rating/alice")
			require.NoError(t, err)
			assert.False(t, ok)
		})

		t.Run("Isolation", func(t *testing.T) {
			s := factory(t)

			require.NoError(t, s.HSet("/rating/a", map[string]string{"rating": "1"}))
			require.NoError(t, s.HSet("/rating/b", map[string]string{"rating": "2"}))
			_, err := s.Delete("/rating/a")
			require.NoError(t, err)

			fields, ok, err := s.HGetAll("/rating/b")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "2", fields["rating"])
		})

		t.Run("Concurrent", func(t *testing.T) {
			s := factory(t)

			var wg sync.WaitGroup
			for w := 0; w < 8; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < 50; i++ {
						assert.NoError(t, s.HSet(fmt.Sprintf("/rating/w%d-%d", w, i), map[string]string{"rating": fmt.Sprint(w)}))
					}
				}(w)
			}
			wg.Wait()

			for w := 0; w < 8; w++ {
				for i := 0; i < 50; i++ {
					fields, ok, err := s.HGetAll(fmt.Sprintf("/rating/w%d-%d", w, i))
					require.NoError(t, err)
					require.True(t, ok)
					assert.Equal(t, fmt.Sprint(w), fields["rating"])
				}
			}
		})

		t.Run("Info", func(t *testing.T) {
			s := factory(t)

			require.NoError(t, s.HSet("/rating/x", map[string]string{"rating": "1"}))
			info, err := s.GetDBInfo()
			require.NoError(t, err)
			assert.GreaterOrEqual(t, info.Keys, 1)
			assert.NotEmpty(t, info.DbType)
		})
	})
}
