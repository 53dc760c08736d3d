// Command swarmctl is the operator CLI for an ida-swarm deployment: it
// inspects session state left on disk by swarm-mcp and the
// encrypted credential pool shared by every orchestrator, and can
// serve a small read-only HTTP debug surface over both.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"

	"github.com/shells-above/ida-swarm-sub005/internal/config"
	"github.com/shells-above/ida-swarm-sub005/internal/credential"
	"github.com/shells-above/ida-swarm-sub005/internal/ledger"
	"github.com/shells-above/ida-swarm-sub005/internal/merge"
	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

var (
	sessionsDir  string
	credPoolPath string
	credKeyEnv   string
	debugAddr    string
)

var rootCmd = &cobra.Command{
	Use:   "swarmctl",
	Short: "Operator tooling for an ida-swarm deployment",
}

func init() {
	cwd, _ := os.Getwd()
	cfg, err := config.Load(cwd)
	if err != nil {
		cfg = config.Default()
	}

	rootCmd.PersistentFlags().StringVar(&sessionsDir, "sessions-dir", cfg.SessionsDir, "directory holding per-session state")
	rootCmd.PersistentFlags().StringVar(&credPoolPath, "credential-pool", cfg.CredentialPoolPath, "path to the encrypted credential pool file")

	rootCmd.AddCommand(sessionsCmd, accountsCmd, conflictsCmd, serveCmd)
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions recorded under the sessions directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		infos, err := listSessions(sessionsDir)
		if err != nil {
			return err
		}
		for _, s := range infos {
			fmt.Printf("%s\t%s\tpid=%d\n", s.SessionID, s.BinaryPath, s.PID)
		}
		return nil
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Inspect the credential pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := credential.Open(credPoolPath, []byte(os.Getenv("IDA_SWARM_CREDENTIAL_KEY")))
		if err != nil {
			return fmt.Errorf("swarmctl: open credential pool: %w", err)
		}
		for _, a := range pool.GetAllAccountsInfo() {
			fmt.Printf("%s\tpriority=%d\t%s\n", a.AccountUUID, a.Priority, a.StatusText())
		}
		return nil
	},
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts <session-id>",
	Short: "Show conflicting write calls recorded for a session, with a diff of each pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ledgerPath := filepath.Join(sessionsDir, args[0], "ledger.db")
		led, err := ledger.Open(ledgerPath, nil)
		if err != nil {
			return fmt.Errorf("swarmctl: open ledger: %w", err)
		}
		defer led.Close()

		pairs, err := led.CheckForConflicts()
		if err != nil {
			return fmt.Errorf("swarmctl: check for conflicts: %w", err)
		}
		if len(pairs) == 0 {
			fmt.Println("no conflicting writes recorded")
			return nil
		}

		for _, pair := range pairs {
			cd := merge.DiffConflict(pair)
			fmt.Printf("address 0x%x: call %d (%s/%s) vs call %d (%s/%s), +%d -%d\n",
				cd.Address, cd.FirstID, cd.FirstAgent, cd.FirstTool, cd.SecondID, cd.SecondAgent, cd.SecondTool, cd.Additions, cd.Deletions)
			if cd.DiffText != "" {
				fmt.Println(cd.DiffText)
			}
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a read-only HTTP debug surface over sessions and the credential pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		r := chi.NewRouter()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet},
		}))

		r.Get("/sessions", func(w http.ResponseWriter, req *http.Request) {
			infos, err := listSessions(sessionsDir)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, infos)
		})

		r.Get("/accounts", func(w http.ResponseWriter, req *http.Request) {
			pool, err := credential.Open(credPoolPath, []byte(os.Getenv("IDA_SWARM_CREDENTIAL_KEY")))
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, pool.GetAllAccountsInfo())
		})

		fmt.Fprintf(os.Stderr, "swarmctl: serving debug endpoints on %s\n", debugAddr)
		return http.ListenAndServe(debugAddr, r)
	},
}

func init() {
	serveCmd.Flags().StringVar(&debugAddr, "addr", "127.0.0.1:4401", "address the debug HTTP server listens on")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// listSessions reads every session's state.json directly off disk
// rather than through a live Supervisor, since swarmctl runs as a
// separate process from swarm-mcp and has no in-memory access to it.
func listSessions(rootDir string) ([]types.SessionInfo, error) {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("swarmctl: read sessions dir: %w", err)
	}

	var infos []types.SessionInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		statePath := filepath.Join(rootDir, entry.Name(), "state.json")
		data, err := os.ReadFile(statePath)
		if err != nil {
			continue
		}
		var sf types.SessionFile
		if json.Unmarshal(data, &sf) != nil {
			continue
		}
		info := types.SessionInfo{
			SessionID:  sf.SessionID,
			BinaryPath: sf.BinaryPath,
			PID:        sf.OrchestratorPID,
			State:      types.SessionReady,
		}
		if fi, err := os.Stat(statePath); err == nil {
			info.CreatedAt = fi.ModTime()
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
