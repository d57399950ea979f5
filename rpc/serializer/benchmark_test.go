package serializer

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/dRate/lib/gossip"
	"github.com/ValentinKolb/dRate/lib/vclock"
)

// benchmarkRecords returns records with a growing number of concurrent choices
func benchmarkRecords() map[string]gossip.Record {
	records := map[string]gossip.Record{}
	for _, n := range []int{1, 4, 32} {
		rec := gossip.Record{Origin: 1, Entity: "benchmark-entity", Hops: 2}
		for i := 0; i < n; i++ {
			rec.Choices = append(rec.Choices, float64(i%5+1))
			rec.Clocks = append(rec.Clocks, vclock.FromMap(map[string]uint64{
				fmt.Sprintf("client-%d", i): uint64(i + 1),
				"client-shared":             3,
			}))
		}
		records[fmt.Sprintf("Choices%d", n)] = rec
	}
	return records
}

func BenchmarkSerialize(b *testing.B) {
	for name, factory := range testSerializers {
		serializer := factory()
		for recName, rec := range benchmarkRecords() {
			b.Run(name+"/"+recName, func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := serializer.Serialize(rec); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkDeserialize(b *testing.B) {
	for name, factory := range testSerializers {
		serializer := factory()
		for recName, rec := range benchmarkRecords() {
			data, err := serializer.Serialize(rec)
			if err != nil {
				b.Fatal(err)
			}
			b.Run(name+"/"+recName, func(b *testing.B) {
				b.ReportAllocs()
				b.SetBytes(int64(len(data)))
				for i := 0; i < b.N; i++ {
					var out gossip.Record
					if err := serializer.Deserialize(data, &out); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
