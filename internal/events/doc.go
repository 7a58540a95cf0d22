// Package events decouples services that request background work from
// the components that perform it.
//
// The rewrite service emits one DispatchEvent per Item it wants processed;
// registered handlers (the in-process task runner or the redis broker
// dispatcher) turn the event into queued work. Events carry identifiers
// only, so they can be redelivered without side effects.
package events
