package lstore

import (
	"testing"

	"github.com/ValentinKolb/dRate/lib/db"
	"github.com/ValentinKolb/dRate/lib/db/engines/maple"
	"github.com/ValentinKolb/dRate/lib/store"
	storetesting "github.com/ValentinKolb/dRate/lib/store/testing"
)

func TestLocalStore(t *testing.T) {
	storetesting.RunIStoreTests(t, "LocalStore", func(t *testing.T) store.IStore {
		return NewLocalStore(func() db.HashDB { return maple.NewMapleDB(nil) })
	})
}
