// Package store provides data persistence interfaces and implementations
// for task records. The only implementation is an in-memory store: task
// state is intentionally not durable across process restarts.
package store
