/*
Package session implements the session supervisor: deterministic
session identity, orchestrator process spawning, bidirectional framed-
pipe IPC, single-flight request/response serialization, and graceful-
then-forceful shutdown.

# Session identity

A session id is the first 64 bits of SHA-256 over the absolute binary
path, hex-encoded and prefixed "session_". On a hash collision against
a different path already recorded on disk, a numeric suffix ("_2",
"_3", ...) is appended until the id is unique. The derivation is pure:
the same binary path always yields the same id, so long as any prior
session directory for it was fully reaped.

# Lifecycle

	NEW → SPAWNING → READY ⇄ BUSY(pending request)
	                     │
	                     └──(close) → DRAINING → DEAD
	any state on EOF + dead PID → DEAD (synthesize error response)

CreateSession derives the id, refuses to proceed if a live orchestrator
already owns the binary, creates the session directory and named
pipes, starts the response reader goroutine, spawns the orchestrator,
opens the request pipe for write (blocking until the child opens its
read end), and sends the initial start_task request.

SendMessage enforces the single-flight invariant: a session may have at
most one outstanding request at a time. A second call made before the
first response is consumed is rejected with an error that names the
still-pending request's text, rather than silently aliasing the
orchestrator's one-response-per-request guarantee.

CloseSession marks the session inactive, waits for all in-flight
SendMessage/WaitForResponse calls to finish (usage_count reaches
zero), sends a shutdown request, waits up to 60 seconds for the
orchestrator to exit on its own, and falls back to SIGKILL only if it
is still alive afterward.
*/
package session
