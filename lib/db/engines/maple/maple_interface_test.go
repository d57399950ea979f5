package maple

import (
	"github.com/ValentinKolb/dRate/lib/db"
	dbtesting "github.com/ValentinKolb/dRate/lib/db/testing"
	"testing"
)

func Test(t *testing.T) {
	dbtesting.RunHashDBTests(t, "MapleDB", func() db.HashDB {
		return NewMapleDB(nil)
	})
}

func TestSingleShard(t *testing.T) {
	dbtesting.RunHashDBTests(t, "MapleDB(1 shard)", func() db.HashDB {
		return NewMapleDB(&DBOptions{NumShards: 1})
	})
}

func Benchmark(t *testing.B) {
	dbtesting.RunHashDBBenchmarks(t, "MapleDB", func() db.HashDB {
		return NewMapleDB(nil)
	})
}
