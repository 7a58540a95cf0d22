// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the orchestration logic, so the services can be tested against
// in-memory fakes and run against PostgreSQL in production.
package store
