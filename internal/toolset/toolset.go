// Package toolset provides the concrete tools registered into
// internal/registry. Per this project's scope, what a tool actually
// does to the disassembly database is an external contract (the
// disassembly host and its tool implementations are a collaborator,
// not something this module owns); these implementations bind the
// named operation, its schema and its write/read classification, and
// leave the actual database mutation to the host-specific backend
// passed in at construction.
package toolset

import (
	"context"
	"encoding/json"

	"github.com/shells-above/ida-swarm-sub005/internal/registry"
	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

// Backend performs the actual read or write against whichever database
// a DBContext points at. Production wiring supplies an implementation
// that talks to the disassembly host; tests supply a fake.
type Backend interface {
	Apply(ctx context.Context, dbCtx registry.DBContext, toolName string, params json.RawMessage) (message string, err error)
}

// baseTool adapts one named operation to registry.Tool, delegating the
// actual effect to a Backend. The shape mirrors this codebase's
// BaseTool helper: a tool is its name, description and schema plus one
// function, not a bespoke type per operation.
type baseTool struct {
	name        string
	description string
	parameters  json.RawMessage
	backend     Backend
}

func newBaseTool(name, description string, parameters json.RawMessage, backend Backend) *baseTool {
	return &baseTool{name: name, description: description, parameters: parameters, backend: backend}
}

func (t *baseTool) Name() string               { return t.name }
func (t *baseTool) Description() string        { return t.description }
func (t *baseTool) Parameters() json.RawMessage { return t.parameters }

func (t *baseTool) Execute(ctx context.Context, dbCtx registry.DBContext, params json.RawMessage) registry.Result {
	msg, err := t.backend.Apply(ctx, dbCtx, t.name, params)
	if err != nil {
		return registry.Result{Success: false, Error: err.Error()}
	}
	return registry.Result{Success: true, Message: msg}
}

var addressParam = json.RawMessage(`{
	"type": "object",
	"properties": {
		"address": {"type": "integer", "description": "Address in the binary, as an integer"}
	},
	"required": ["address"]
}`)

// specs lists name/description/parameters for every tool
// this process knows about. IsWrite is sourced from the closed set in
// pkg/types rather than repeated here, so the two can never drift.
var specs = []struct {
	name        string
	description string
	parameters  json.RawMessage
}{
	{"set_name", "Rename the symbol at an address", addressParam},
	{"set_comment", "Attach a comment to an address", addressParam},
	{"set_function_prototype", "Set a function's declared prototype", addressParam},
	{"set_variable", "Rename or retype a stack or global variable", addressParam},
	{"set_local_type", "Define or update a local type", addressParam},
	{"patch_bytes", "Patch raw bytes at an address", addressParam},
	{"patch_assembly", "Patch the assembly at an address", addressParam},
	{"get_function_info", "Read a function's signature, bounds and basic metadata", addressParam},
	{"get_xrefs", "Read cross-references to or from an address", addressParam},
	{"get_disassembly", "Read disassembly text for an address range", addressParam},
}

// Register adds every known tool to r, bound to backend.
func Register(r *registry.Registry, backend Backend) {
	for _, s := range specs {
		r.Register(newBaseTool(s.name, s.description, s.parameters, backend))
	}
}

// Names returns every tool name this package knows about, split by
// write classification, matching pkg/types.WriteTools.
func Names() (writes, reads []string) {
	for _, s := range specs {
		if types.IsWriteTool(s.name) {
			writes = append(writes, s.name)
		} else {
			reads = append(reads, s.name)
		}
	}
	return writes, reads
}
