// Package task runs Item processing in the background.
//
// The items table is the work queue of record: a TaskRunner feeds Item IDs
// from dispatch events into a bounded in-memory queue drained by a fixed
// worker pool, requeues pending and processing Items on start, and
// periodically requeues Items stuck in processing. Handlers must be
// idempotent because the same Item can be delivered more than once.
package task
