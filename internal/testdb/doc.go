// Package testdb provides utilities for tests that need a real PostgreSQL
// database. Tests call GetTestDB, which skips the test unless
// QUILL_TEST_DB_URL or DATABASE_URL is set (and fails it in CI), applies the
// embedded migrations once per process and returns a shared connection.
// WithTx gives each test its own rolled-back transaction so tests can run
// in parallel without seeing each other.
package testdb
