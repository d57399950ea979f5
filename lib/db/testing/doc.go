// Package testing provides standardised tests and benchmarks for
// database implementations that satisfy the db.HashDB interface.
//
// Example usage:
//
//	factory := func() db.HashDB {
//		return NewMyDatabase()
//	}
//
//	// Running the standard test suite
//	dbtesting.RunHashDBTests(t, "MyDatabase", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunHashDBBenchmarks(b, "MyDatabase", factory)
package testing
