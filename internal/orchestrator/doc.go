// Package orchestrator implements the per-binary orchestrator process
// spawned by the session supervisor. It is the mirror image of
// internal/session on the child side of the named-pipe IPC: it opens
// request.pipe for reading and response.pipe for writing, hosts the
// broker every agent it spawns joins, owns the action ledger and the
// merge engine, and drives a binary's agent pool from start_task
// through shutdown.
package orchestrator
