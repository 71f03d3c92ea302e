// Package api implements the HTTP gateway over the task lifecycle engine.
// It adapts JSON requests to engine calls and maps internal errors to HTTP
// status codes without leaking internal details to clients.
package api
