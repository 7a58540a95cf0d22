// Package asynqueue dispatches Item processing through a redis-backed
// asynq queue, as an alternative to the in-process task runner.
//
// The Dispatcher keeps at most one asynq task per item and the Server
// feeds dequeued tasks to the same item handler the in-process runner
// uses. The items table stays the queue of record; asynq tasks are never
// retried by the broker, and lost deliveries are found again by the item
// monitor.
package asynqueue
