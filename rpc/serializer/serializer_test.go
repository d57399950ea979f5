package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/dRate/lib/gossip"
	"github.com/ValentinKolb/dRate/lib/vclock"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRecordSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testRecords creates a set of records with different fields filled
func testRecords() []gossip.Record {
	return []gossip.Record{
		// single choice
		{
			Origin:  0,
			Entity:  "bob",
			Mean:    5,
			Choices: []float64{5},
			Clocks:  []vclock.VectorClock{vclock.FromMap(map[string]uint64{"c1": 1})},
		},

		// concurrent choices, forwarded a few times
		{
			Origin:  3,
			Entity:  "alice",
			Mean:    3.25,
			Choices: []float64{2.5, 4},
			Clocks: []vclock.VectorClock{
				vclock.FromMap(map[string]uint64{"c1": 2, "c2": 1}),
				vclock.FromMap(map[string]uint64{"c3": 18446744073709551615}),
			},
			Hops: 7,
		},

		// unicode entity and clock ids
		{
			Origin:  1,
			Entity:  "你好世界",
			Mean:    -1.5,
			Choices: []float64{-1.5},
			Clocks:  []vclock.VectorClock{vclock.FromMap(map[string]uint64{"ü": 3})},
			Hops:    1,
		},
	}
}

// TestSerializerRoundTrip tests that records can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	records := testRecords()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, rec := range records {
				data, err := serializer.Serialize(rec)
				if err != nil {
					t.Errorf("Failed to serialize record %d: %v", i, err)
					continue
				}

				var result gossip.Record
				if err := serializer.Deserialize(data, &result); err != nil {
					t.Errorf("Failed to deserialize record %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(rec, result) {
					t.Errorf("Record %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, rec, result)
				}
			}
		})
	}
}

// TestNew tests the serializer lookup by name and content type
func TestNew(t *testing.T) {
	for _, name := range []string{"json", "gob", "binary", ""} {
		s, err := New(name)
		if err != nil {
			t.Fatalf("New(%q) failed: %v", name, err)
		}
		found, ok := ForContentType(s.ContentType())
		if !ok || found.ContentType() != s.ContentType() {
			t.Errorf("ForContentType(%q) did not find the serializer", s.ContentType())
		}
	}
	if _, err := New("xml"); err == nil {
		t.Errorf("Expected an error for an unknown serializer")
	}
	if _, ok := ForContentType("text/plain"); ok {
		t.Errorf("Expected no serializer for text/plain")
	}
}

// TestBinaryDeterministic verifies that clock iteration order does not change the encoding
func TestBinaryDeterministic(t *testing.T) {
	serializer := NewBinarySerializer()
	rec := gossip.Record{
		Entity:  "bob",
		Choices: []float64{1},
		Clocks:  []vclock.VectorClock{vclock.FromMap(map[string]uint64{"a": 1, "b": 2, "c": 3, "d": 4})},
	}
	first, err := serializer.Serialize(rec)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		data, _ := serializer.Serialize(rec)
		if !reflect.DeepEqual(first, data) {
			t.Fatalf("Binary encoding is not deterministic")
		}
	}
	if len(first) != serializer.(*binarySerializerImpl).sizeBytes(rec) {
		t.Errorf("sizeBytes() = %d, encoded %d bytes", serializer.(*binarySerializerImpl).sizeBytes(rec), len(first))
	}
}

// TestBinarySerializeInvalid tests that broken records are rejected before encoding
func TestBinarySerializeInvalid(t *testing.T) {
	serializer := NewBinarySerializer()
	if _, err := serializer.Serialize(gossip.Record{Choices: []float64{1}}); err == nil {
		t.Errorf("Expected an error for misaligned choices and clocks")
	}
	if _, err := serializer.Serialize(gossip.Record{Origin: -1}); err == nil {
		t.Errorf("Expected an error for a negative origin")
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()
	valid, err := serializer.Serialize(testRecords()[1])
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Wrong version",
			data:        append([]byte{9}, valid[1:]...),
			expectError: true,
		},
		{
			name:        "Truncated header",
			data:        valid[:10],
			expectError: true,
		},
		{
			name:        "Truncated clock",
			data:        valid[:len(valid)-3],
			expectError: true,
		},
		{
			name:        "Trailing bytes",
			data:        append(append([]byte{}, valid...), 0),
			expectError: true,
		},
		{
			name:        "Huge choice count",
			data:        []byte{binaryVersion, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff},
			expectError: true,
		},
		{
			name:        "Valid record",
			data:        valid,
			expectError: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var rec gossip.Record
			err := serializer.Deserialize(tc.data, &rec)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
