package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shells-above/ida-swarm-sub005/internal/broker"
	"github.com/shells-above/ida-swarm-sub005/internal/event"
	"github.com/shells-above/ida-swarm-sub005/internal/ipc"
	"github.com/shells-above/ida-swarm-sub005/internal/ledger"
	"github.com/shells-above/ida-swarm-sub005/internal/merge"
	"github.com/shells-above/ida-swarm-sub005/internal/registry"
	"github.com/shells-above/ida-swarm-sub005/internal/toolset"
	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

// Orchestrator drives one binary's analysis swarm for the life of its
// session: it owns the broker, ledger and merge engine, spawns and
// reaps agent subprocesses per task, and answers the supervisor over
// the named-pipe IPC the session package opened on the other end.
type Orchestrator struct {
	cfg Config
	log zerolog.Logger

	bus     *event.Bus
	broker  *broker.Server
	ledger  *ledger.Ledger
	reg     *registry.Registry
	backend *FileBackend
	merger  *merge.Engine

	canonicalDBPath string

	mu     sync.Mutex
	agents []*agentProcess
}

// New builds an Orchestrator for cfg, opening the ledger and starting
// the broker listener. Callers must call Close once the session ends.
func New(cfg Config, log zerolog.Logger) (*Orchestrator, error) {
	log = log.With().Str("component", "orchestrator").Str("session_id", cfg.SessionID).Logger()

	bus := event.NewBus()

	brk, err := broker.New(filepath.Join(cfg.SessionDir, "transcript.db"), bus, log)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: create broker: %w", err)
	}
	go func() {
		if err := brk.ListenAndServe(cfg.BrokerAddr); err != nil {
			log.Error().Err(err).Msg("broker listener stopped")
		}
	}()

	led, err := ledger.Open(filepath.Join(cfg.SessionDir, "ledger.db"), bus)
	if err != nil {
		brk.Close()
		return nil, fmt.Errorf("orchestrator: open ledger: %w", err)
	}

	backend := NewFileBackend()
	reg := registry.New()
	toolset.Register(reg, backend)

	canonicalDBPath := filepath.Join(cfg.SessionDir, "canonical.json")
	merger := merge.New(reg, led, canonicalDBPath, bus)

	return &Orchestrator{
		cfg:             cfg,
		log:             log,
		bus:             bus,
		broker:          brk,
		ledger:          led,
		reg:             reg,
		backend:         backend,
		merger:          merger,
		canonicalDBPath: canonicalDBPath,
	}, nil
}

// Close tears down the broker and ledger. It does not touch any
// in-flight agent subprocess; callers are expected to have already
// handled a shutdown request first.
func (o *Orchestrator) Close() {
	o.broker.Close()
	o.ledger.Close()
	o.bus.Close()
}

// HandleRequest dispatches one framed IPC request to the matching
// handler and returns the response to write back down the pipe.
func (o *Orchestrator) HandleRequest(ctx context.Context, req types.IPCRequest) types.IPCResponse {
	switch req.Method {
	case types.MethodStartTask:
		var params types.StartTaskParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errResponse(fmt.Errorf("orchestrator: decode start_task params: %w", err))
		}
		content, err := o.runSwarm(ctx, params.Task)
		if err != nil {
			return errResponse(err)
		}
		return types.IPCResponse{Result: &types.IPCResult{
			Content: fmt.Sprintf("Session ID: %s\n\n%s", o.cfg.SessionID, content),
		}}

	case types.MethodProcessInput:
		var params types.ProcessInputParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errResponse(fmt.Errorf("orchestrator: decode process_input params: %w", err))
		}
		content, err := o.runSwarm(ctx, params.Message)
		if err != nil {
			return errResponse(err)
		}
		return types.IPCResponse{Result: &types.IPCResult{Content: content}}

	case types.MethodShutdown:
		report, err := o.merger.MergeAll(ctx)
		if err != nil {
			return errResponse(err)
		}
		return types.IPCResponse{Result: &types.IPCResult{
			Content: fmt.Sprintf("merged %d applied, %d failed", report.Applied, report.Failed),
		}}

	default:
		return errResponse(fmt.Errorf("orchestrator: unknown method %q", req.Method))
	}
}

func errResponse(err error) types.IPCResponse {
	return types.IPCResponse{Error: err.Error()}
}

// runSwarm spawns cfg.AgentCount swarm-agent subprocesses against task,
// waits for every one to finish its own tool-calling loop, merges every
// recorded write call into the canonical database, and summarizes the
// outcome as the text the supervisor returns to the MCP client.
func (o *Orchestrator) runSwarm(ctx context.Context, task string) (string, error) {
	provider := o.selectProvider()
	agentCount := o.cfg.AgentCount
	if agentCount <= 0 {
		agentCount = 1
	}

	ledgerPath := filepath.Join(o.cfg.SessionDir, "ledger.db")
	spawned := make([]*agentProcess, 0, agentCount)
	for i := 0; i < agentCount; i++ {
		agentID := fmt.Sprintf("agent_%d", i+1)
		ap, err := spawnAgent(o.cfg.AgentPath, agentID, task, o.cfg.SessionDir, o.cfg.BrokerAddr, ledgerPath, o.cfg.CredentialPoolPath, o.cfg.CredentialKey, provider)
		if err != nil {
			o.log.Error().Err(err).Str("agent_id", agentID).Msg("failed to spawn agent")
			continue
		}
		spawned = append(spawned, ap)
	}

	o.mu.Lock()
	o.agents = append(o.agents, spawned...)
	o.mu.Unlock()

	if len(spawned) == 0 {
		return "", fmt.Errorf("orchestrator: no agents could be spawned")
	}

	var wg sync.WaitGroup
	for _, ap := range spawned {
		wg.Add(1)
		go func(ap *agentProcess) {
			defer wg.Done()
			if err := ap.wait(); err != nil {
				o.log.Warn().Err(err).Str("agent_id", ap.ID).Msg("agent process exited with error")
			}
		}(ap)
	}
	wg.Wait()

	conflicts, err := o.ledger.CheckForConflicts()
	if err != nil {
		o.log.Warn().Err(err).Msg("failed to check for conflicts after swarm run")
	}

	report, err := o.merger.MergeAll(ctx)
	if err != nil {
		return "", fmt.Errorf("orchestrator: merge after swarm run: %w", err)
	}

	return fmt.Sprintf(
		"%d agent(s) completed task %q. Merge applied %d write call(s), %d failed. %d conflicting address pair(s) detected.",
		len(spawned), task, report.Applied, report.Failed, len(conflicts),
	), nil
}

func (o *Orchestrator) selectProvider() providerEnv {
	for _, name := range []string{"anthropic", "openai"} {
		if p, ok := o.cfg.Provider[name]; ok && p.BaseURL != "" {
			return providerEnv{BaseURL: p.BaseURL, APIKey: p.APIKey, Model: p.Model}
		}
	}
	for _, p := range o.cfg.Provider {
		if p.BaseURL != "" {
			return providerEnv{BaseURL: p.BaseURL, APIKey: p.APIKey, Model: p.Model}
		}
	}
	return providerEnv{}
}

// Serve opens the request and response pipes (the mirror image of
// session.Supervisor's opens: this side reads where the supervisor
// writes and writes where it reads) and loops handling requests until
// the pipe closes or a shutdown request is handled.
func Serve(ctx context.Context, cfg Config, log zerolog.Logger) error {
	o, err := New(cfg, log)
	if err != nil {
		return err
	}
	defer o.Close()

	requestPipe := filepath.Join(cfg.SessionDir, "request.pipe")
	responsePipe := filepath.Join(cfg.SessionDir, "response.pipe")

	respFile, err := ipc.OpenWriteBlocking(responsePipe)
	if err != nil {
		return fmt.Errorf("orchestrator: open response pipe: %w", err)
	}
	defer respFile.Close()

	reqFile, err := ipc.OpenReadBlocking(requestPipe)
	if err != nil {
		return fmt.Errorf("orchestrator: open request pipe: %w", err)
	}
	defer reqFile.Close()

	reader := ipc.NewBufferedReader(reqFile)

	for {
		body, err := ipc.ReadFrame(reader)
		if err != nil {
			if err == ipc.ErrClosed {
				log.Info().Msg("request pipe closed, exiting")
				return nil
			}
			return fmt.Errorf("orchestrator: read request frame: %w", err)
		}

		var req types.IPCRequest
		if jsonErr := json.Unmarshal(body, &req); jsonErr != nil {
			log.Error().Err(jsonErr).Msg("failed to decode request envelope")
			continue
		}

		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		resp := o.HandleRequest(reqCtx, req)
		cancel()

		respBody, err := json.Marshal(resp)
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal response")
			continue
		}
		if err := ipc.WriteFrame(respFile, respBody); err != nil {
			return fmt.Errorf("orchestrator: write response frame: %w", err)
		}

		if req.Method == types.MethodShutdown {
			o.stopAllAgents()
			return nil
		}
	}
}

func (o *Orchestrator) stopAllAgents() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ap := range o.agents {
		ap.stop()
	}
}
