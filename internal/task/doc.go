// Package task implements the task lifecycle engine: admission-limited
// asynchronous execution of submitted work, in-memory lifecycle bookkeeping,
// and periodic eviction of old terminal records. It ensures long-running
// operations don't block request handling while keeping their status
// queryable until retention evicts them.
package task
