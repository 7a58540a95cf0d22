// Package postgres implements the task, credit and user stores on
// PostgreSQL through database/sql and the pgx driver. The credit store
// serializes changes per owner with SELECT ... FOR UPDATE on the balance
// row. Schema changes live in the embedded goose migrations and are applied
// with Migrate.
package postgres
