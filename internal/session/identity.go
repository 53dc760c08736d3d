package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

// hashBinaryPath returns the first 16 hex characters (64 bits) of the
// SHA-256 digest of the absolute binary path.
func hashBinaryPath(binaryPath string) string {
	sum := sha256.Sum256([]byte(binaryPath))
	return hex.EncodeToString(sum[:8])
}

// generateSessionID derives a deterministic session id for binaryPath,
// appending a numeric suffix if the directory that id would occupy
// already belongs to a different binary path (a hash collision).
func generateSessionID(sessionsRootDir, binaryPath string) string {
	sessionID := "session_" + hashBinaryPath(binaryPath)

	sessionDir := filepath.Join(sessionsRootDir, sessionID)
	stateFile := filepath.Join(sessionDir, "state.json")

	if data, err := os.ReadFile(stateFile); err == nil {
		var stored types.SessionFile
		if json.Unmarshal(data, &stored) == nil && stored.BinaryPath != "" && stored.BinaryPath != binaryPath {
			suffix := 2
			for {
				candidate := fmt.Sprintf("%s_%d", sessionID, suffix)
				if _, err := os.Stat(filepath.Join(sessionsRootDir, candidate)); os.IsNotExist(err) {
					return candidate
				}
				suffix++
			}
		}
	}

	return sessionID
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
