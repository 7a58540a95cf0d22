// Package api exposes the rewrite pipeline over HTTP: task submission,
// status polling, reprocessing and the owner's credit account. Handlers
// decode and validate requests, call the services and map service errors
// to status codes and safe messages.
package api
