// Package observability provides structured logging, the JSONL event log,
// metrics derived from it, due-date alerting, and alert delivery for todo.
package observability
