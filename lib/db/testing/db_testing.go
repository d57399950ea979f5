package testing

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dRate/lib/db"
)

// DBFactory is a function that creates a new instance of a HashDB implementation
type DBFactory func() db.HashDB

// RunHashDBTests runs a comprehensive test suite for a HashDB implementation.
func RunHashDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("HSet&HGetAll", func(t *testing.T) {
			testHSetHGetAll(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("StaleWrites", func(t *testing.T) {
			testStaleWrites(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("ConcurrentWriters", func(t *testing.T) {
			testConcurrentWriters(t, factory())
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.HashDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

func ratingFields(mean string) map[string]string {
	return map[string]string{
		"rating":  mean,
		"choices": "[" + mean + "]",
		"clocks":  `[{"c1":1}]`,
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testHSetHGetAll(t *testing.T, database db.HashDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureHSet|db.FeatureHGetAll)

	key := "/rating/bob"
	database.HSet(key, ratingFields("5"), 1)

	fields, exists := database.HGetAll(key)
	if !exists {
		t.Fatalf("Expected key %s to exist after HSet", key)
	}
	if fields["rating"] != "5" || fields["choices"] != "[5]" || fields["clocks"] != `[{"c1":1}]` {
		t.Errorf("Unexpected fields after HSet: %v", fields)
	}

	// partial update keeps untouched fields
	database.HSet(key, map[string]string{"rating": "4"}, 2)
	fields, _ = database.HGetAll(key)
	if fields["rating"] != "4" {
		t.Errorf("Expected rating 4 after update, got %s", fields["rating"])
	}
	if fields["choices"] != "[5]" {
		t.Errorf("Expected choices to survive partial update, got %s", fields["choices"])
	}

	// returned maps must be copies
	fields["rating"] = "mutated"
	again, _ := database.HGetAll(key)
	if again["rating"] != "4" {
		t.Errorf("HGetAll should return a copy, stored value changed to %s", again["rating"])
	}

	// caller maps must not be retained either
	update := map[string]string{"rating": "3"}
	database.HSet(key, update, 3)
	update["rating"] = "mutated"
	again, _ = database.HGetAll(key)
	if again["rating"] != "3" {
		t.Errorf("HSet should copy the fields, stored value changed to %s", again["rating"])
	}

	if _, exists := database.HGetAll("/rating/nobody"); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	if database.WriteIdx() != 3 {
		t.Errorf("Expected write index 3, got %d", database.WriteIdx())
	}
}

func testDelete(t *testing.T, database db.HashDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureHSet|db.FeatureHGetAll|db.FeatureDelete)

	key := "/rating/alice"
	if database.Delete(key, 1) {
		t.Errorf("Delete of a missing key should return false")
	}

	database.HSet(key, ratingFields("2"), 2)
	if !database.Delete(key, 3) {
		t.Errorf("Delete of an existing key should return true")
	}
	if _, exists := database.HGetAll(key); exists {
		t.Errorf("Key should not exist after Delete")
	}
	if database.Delete(key, 4) {
		t.Errorf("Second Delete should return false")
	}

	// a key can be recreated after delete
	database.HSet(key, ratingFields("1"), 5)
	if fields, exists := database.HGetAll(key); !exists || fields["rating"] != "1" {
		t.Errorf("Expected recreated key, got %v, %v", fields, exists)
	}
}

func testHas(t *testing.T, database db.HashDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureHSet|db.FeatureHas|db.FeatureDelete)

	if database.Has("k") {
		t.Errorf("Has should be false for a missing key")
	}
	database.HSet("k", map[string]string{"f": "v"}, 1)
	if !database.Has("k") {
		t.Errorf("Has should be true after HSet")
	}
	database.Delete("k", 2)
	if database.Has("k") {
		t.Errorf("Has should be false after Delete")
	}
}

func testStaleWrites(t *testing.T, database db.HashDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureHSet|db.FeatureHGetAll|db.FeatureDelete)

	database.HSet("k", map[string]string{"f": "new"}, 10)
	database.HSet("k", map[string]string{"f": "old"}, 5)

	fields, _ := database.HGetAll("k")
	if fields["f"] != "new" {
		t.Errorf("Stale HSet must be ignored, got %s", fields["f"])
	}

	if database.Delete("k", 7) {
		t.Errorf("Stale Delete must be ignored")
	}
	if !database.Has("k") {
		t.Errorf("Key must survive a stale Delete")
	}

	// same index is not stale
	database.HSet("k", map[string]string{"f": "same"}, 10)
	fields, _ = database.HGetAll("k")
	if fields["f"] != "same" {
		t.Errorf("Write with equal index must be applied, got %s", fields["f"])
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureHSet|db.FeatureHGetAll|db.FeatureSave|db.FeatureLoad)

	numEntries := 1000
	for i := 0; i < numEntries; i++ {
		database.HSet(fmt.Sprintf("/rating/entity-%d", i), ratingFields(fmt.Sprintf("%d", i%5)), uint64(i+1))
	}

	// the target database already holds data that must be replaced
	database2.HSet("/rating/stale", ratingFields("1"), 1)

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}
	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("/rating/entity-%d", i)
		fields, exists := database2.HGetAll(key)
		if !exists {
			t.Errorf("Key %s not found after Load", key)
			continue
		}
		expected := ratingFields(fmt.Sprintf("%d", i%5))
		for name, value := range expected {
			if fields[name] != value {
				t.Errorf("Field %s mismatch for key %s: expected %s, got %s", name, key, value, fields[name])
			}
		}
	}

	if database2.Has("/rating/stale") {
		t.Errorf("Load must replace the previous content")
	}
	if database2.WriteIdx() != uint64(numEntries) {
		t.Errorf("Expected write index %d after Load, got %d", numEntries, database2.WriteIdx())
	}

	// loading garbage must fail
	if err := database2.Load(bytes.NewReader([]byte("not a snapshot"))); err == nil {
		t.Errorf("Expected an error when loading an invalid snapshot")
	}
}

func testEdgeCases(t *testing.T, database db.HashDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureHSet|db.FeatureHGetAll)

	// empty key and empty field values
	database.HSet("", map[string]string{"": ""}, 1)
	fields, exists := database.HGetAll("")
	if !exists {
		t.Errorf("Empty key should be storable")
	}
	if v, ok := fields[""]; !ok || v != "" {
		t.Errorf("Empty field name should be storable, got %v", fields)
	}

	// HSet with no fields still creates the key
	database.HSet("empty", map[string]string{}, 2)
	fields, exists = database.HGetAll("empty")
	if !exists || len(fields) != 0 {
		t.Errorf("Expected existing key with no fields, got %v, %v", fields, exists)
	}

	// unicode and large values
	large := string(bytes.Repeat([]byte("x"), 1<<20))
	database.HSet("ünïcødé", map[string]string{"value": large}, 3)
	fields, _ = database.HGetAll("ünïcødé")
	if fields["value"] != large {
		t.Errorf("Large value was not stored correctly")
	}
}

func testConcurrentWriters(t *testing.T, database db.HashDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureHSet|db.FeatureHGetAll)

	const writers = 16
	const keysPerWriter = 200

	var index atomic.Uint64
	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < keysPerWriter; i++ {
				database.HSet(fmt.Sprintf("w%d-k%d", w, i), map[string]string{"w": fmt.Sprint(w)}, index.Add(1))
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < writers; w++ {
		for i := 0; i < keysPerWriter; i++ {
			fields, exists := database.HGetAll(fmt.Sprintf("w%d-k%d", w, i))
			if !exists || fields["w"] != fmt.Sprint(w) {
				t.Fatalf("Missing or wrong entry for writer %d key %d: %v", w, i, fields)
			}
		}
	}
}

func testInfo(t *testing.T, database db.HashDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureHSet)

	for i := 0; i < 50; i++ {
		database.HSet(fmt.Sprintf("k%d", i), ratingFields("3"), uint64(i+1))
	}

	info := database.GetInfo()
	if info.Keys != 50 {
		t.Errorf("Expected 50 keys in info, got %d", info.Keys)
	}
	if info.SizeBytes <= 0 {
		t.Errorf("Expected a positive size estimate, got %d", info.SizeBytes)
	}
	if len(info.SupportedFeatures) == 0 {
		t.Errorf("Expected supported features to be reported")
	}
}
