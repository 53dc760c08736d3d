package orchestrator

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/shells-above/ida-swarm-sub005/internal/registry"
)

// toolParams is the superset of fields any tool call's params may
// carry. Each tool only reads the fields relevant to it; the JSON
// Schema every tool advertises only requires "address", so the rest
// are optional by construction.
type toolParams struct {
	Address    uint64 `json:"address"`
	Name       string `json:"name,omitempty"`
	Comment    string `json:"comment,omitempty"`
	Prototype  string `json:"prototype,omitempty"`
	Variable   string `json:"variable,omitempty"`
	TypeName   string `json:"type_name,omitempty"`
	Definition string `json:"definition,omitempty"`
	Bytes      string `json:"bytes,omitempty"` // hex-encoded
	Assembly   string `json:"assembly,omitempty"`
}

// record is the simulated disassembly host's view of one address.
type record struct {
	Name      string `json:"name,omitempty"`
	Comment   string `json:"comment,omitempty"`
	Prototype string `json:"prototype,omitempty"`
	Variable  string `json:"variable,omitempty"`
	LocalType string `json:"local_type,omitempty"`
	Patch     string `json:"patch,omitempty"` // hex-encoded
	Assembly  string `json:"assembly,omitempty"`
}

// FileBackend is a simulated toolset.Backend: no real IDA database is
// ever opened, so each DBContext.DatabasePath is instead a JSON file
// this backend reads, mutates and rewrites on every call, holding one
// record per address. Using a real file rather than an in-process map
// is what lets an agent subprocess and the orchestrator's later merge
// replay — two different OS processes — agree on the same workspace
// state; real IDA integration is a collaborator this project does not
// implement.
type FileBackend struct {
	mu sync.Mutex
}

// NewFileBackend creates a backend ready to serve any DatabasePath.
func NewFileBackend() *FileBackend {
	return &FileBackend{}
}

func loadDB(path string) (map[uint64]*record, error) {
	db := make(map[uint64]*record)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return db, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return db, nil
	}
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("backend: corrupt workspace state %s: %w", path, err)
	}
	return db, nil
}

func saveDB(path string, db map[uint64]*record) error {
	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Apply implements toolset.Backend.
func (b *FileBackend) Apply(_ context.Context, dbCtx registry.DBContext, toolName string, params json.RawMessage) (string, error) {
	var p toolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("backend: invalid params for %s: %w", toolName, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	db, err := loadDB(dbCtx.DatabasePath)
	if err != nil {
		return "", err
	}
	rec, ok := db[p.Address]
	if !ok {
		rec = &record{}
		db[p.Address] = rec
	}

	var message string
	switch toolName {
	case "set_name":
		rec.Name = p.Name
		message = fmt.Sprintf("renamed 0x%x to %q", p.Address, p.Name)
	case "set_comment":
		rec.Comment = p.Comment
		message = fmt.Sprintf("commented 0x%x", p.Address)
	case "set_function_prototype":
		rec.Prototype = p.Prototype
		message = fmt.Sprintf("set prototype at 0x%x to %q", p.Address, p.Prototype)
	case "set_variable":
		rec.Variable = p.Variable
		message = fmt.Sprintf("retyped variable %s at 0x%x", p.Variable, p.Address)
	case "set_local_type":
		rec.LocalType = p.Definition
		message = fmt.Sprintf("defined local type %s at 0x%x", p.TypeName, p.Address)
	case "patch_bytes":
		patch, hexErr := hex.DecodeString(p.Bytes)
		if hexErr != nil {
			return "", fmt.Errorf("backend: patch_bytes: invalid hex: %w", hexErr)
		}
		rec.Patch = hex.EncodeToString(patch)
		message = fmt.Sprintf("patched %d bytes at 0x%x", len(patch), p.Address)
	case "patch_assembly":
		rec.Assembly = p.Assembly
		message = fmt.Sprintf("patched assembly at 0x%x", p.Address)
	case "get_function_info":
		return fmt.Sprintf("name=%q prototype=%q", rec.Name, rec.Prototype), nil
	case "get_xrefs":
		return fmt.Sprintf("no cross-references recorded for 0x%x", p.Address), nil
	case "get_disassembly":
		if rec.Assembly != "" {
			return rec.Assembly, nil
		}
		return fmt.Sprintf("; no disassembly available at 0x%x", p.Address), nil
	default:
		return "", fmt.Errorf("backend: unknown tool %q", toolName)
	}

	if err := saveDB(dbCtx.DatabasePath, db); err != nil {
		return "", fmt.Errorf("backend: persist workspace state: %w", err)
	}
	return message, nil
}
