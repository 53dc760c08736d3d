// Package agentproc implements the agent process runtime: the
// tool-calling loop a single spawned agent process runs against its
// own workspace copy of the disassembly database. It records every
// dispatched call to the shared ledger, announces its task and
// progress over the broker, and defers the actual "what to do next"
// decision to a Planner — the upstream LLM integration point, whose
// wire format is out of this project's scope.
package agentproc
