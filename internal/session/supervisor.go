// Package session implements the MCP server's session supervisor: it
// owns the lifecycle of orchestrator child processes, the named-pipe
// IPC that talks to them, and the deterministic session-identity
// derivation that lets a second call against the same binary rejoin
// the orchestrator already analyzing it instead of spawning a second
// one.
//
//	new -> spawning -> ready <-> busy -> draining -> dead
//
// CreateSession moves a binary path from new to ready (spawning the
// orchestrator and completing its initial task synchronously).
// SendMessage moves ready->busy->ready for each request/response pair,
// enforcing that only one request is ever outstanding per session.
// CloseSession moves ready/busy->draining->dead, waiting for any
// in-flight request to finish before asking the orchestrator to exit
// and, if it does not, killing it.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shells-above/ida-swarm-sub005/internal/ipc"
	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

// gracefulShutdownTimeout bounds how long CloseSession waits for a
// shutdown-requested orchestrator to exit on its own before it is
// force-killed.
const gracefulShutdownTimeout = 60 * time.Second

// Supervisor owns every live session for one MCP server process.
type Supervisor struct {
	rootDir     string
	maxSessions int
	spawner     Spawner
	log         zerolog.Logger

	mu              sync.Mutex
	sessions        map[string]*session
	binaryToSession map[string]string
}

// NewSupervisor creates a Supervisor rooted at rootDir (created if
// missing). rootDir holds one subdirectory per session, named after
// its session id.
func NewSupervisor(rootDir string, maxSessions int, spawner Spawner, log zerolog.Logger) (*Supervisor, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("session: create sessions root %s: %w", rootDir, err)
	}
	return &Supervisor{
		rootDir:         rootDir,
		maxSessions:     maxSessions,
		spawner:         spawner,
		log:             log.With().Str("component", "session_supervisor").Logger(),
		sessions:        make(map[string]*session),
		binaryToSession: make(map[string]string),
	}, nil
}

// CreateSession spawns an orchestrator for binaryPath and blocks until
// it has produced a response to the initial task, or returns an error
// if the binary is already owned by a live session, the supervisor is
// at capacity, or the orchestrator failed to start.
func (sup *Supervisor) CreateSession(binaryPath, task string) (string, types.IPCResponse, error) {
	absPath, err := filepath.Abs(binaryPath)
	if err != nil {
		return "", types.IPCResponse{}, fmt.Errorf("session: resolve binary path: %w", err)
	}

	sup.mu.Lock()
	if existing, ok := sup.binaryToSession[absPath]; ok {
		if s, ok := sup.sessions[existing]; ok && s.isActive() {
			sup.mu.Unlock()
			return "", types.IPCResponse{}, ErrAlreadyActive
		}
	}
	if sup.maxSessions > 0 && len(sup.sessions) >= sup.maxSessions {
		sup.mu.Unlock()
		return "", types.IPCResponse{}, ErrMaxSessions
	}
	sup.mu.Unlock()

	sessionID := generateSessionID(sup.rootDir, absPath)
	dir := filepath.Join(sup.rootDir, sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", types.IPCResponse{}, fmt.Errorf("%w: %v", ErrPipeFailed, err)
	}

	s := newSession(sessionID, absPath, dir)

	if err := ipc.CreateFIFO(s.requestPipe, 0600); err != nil {
		return "", types.IPCResponse{}, fmt.Errorf("%w: %v", ErrPipeFailed, err)
	}
	if err := ipc.CreateFIFO(s.responsePipe, 0600); err != nil {
		return "", types.IPCResponse{}, fmt.Errorf("%w: %v", ErrPipeFailed, err)
	}

	// The reader goroutine opens the response pipe for reading now; that
	// open(2) call blocks until the orchestrator opens the same FIFO for
	// writing, which happens during its own startup.
	go s.runReader(sup.log)

	pid, err := sup.spawner.Spawn(sessionID, absPath, dir)
	if err != nil {
		s.readerShouldStop = true
		os.RemoveAll(dir)
		return "", types.IPCResponse{}, err
	}
	s.orchestratorPID = pid

	if err := s.writeStateFile(); err != nil {
		sup.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to write state file")
	}

	// Opening the request pipe for writing blocks until the orchestrator
	// has opened it for reading, giving us a synchronization point that
	// the child has reached the point of accepting requests.
	reqFile, err := ipc.OpenWriteBlocking(s.requestPipe)
	if err != nil {
		s.readerShouldStop = true
		return "", types.IPCResponse{}, fmt.Errorf("%w: %v", ErrPipeFailed, err)
	}
	s.requestPipeFile = reqFile

	sup.mu.Lock()
	sup.sessions[sessionID] = s
	sup.binaryToSession[absPath] = sessionID
	sup.mu.Unlock()

	s.acquireUsage()
	defer s.releaseUsage()

	s.stateMu.Lock()
	s.hasPendingRequest = true
	s.pendingRequestText = task
	s.responseBuffer = nil
	s.stateMu.Unlock()

	if err := s.sendRequest(types.MethodStartTask, types.StartTaskParams{BinaryPath: absPath, Task: task}); err != nil {
		return sessionID, types.IPCResponse{}, fmt.Errorf("session: send initial task: %w", err)
	}

	resp, err := s.waitForResponse(int((gracefulShutdownTimeout).Milliseconds()))
	return sessionID, resp, err
}

// SendMessage delivers message to an existing session's orchestrator
// and, when wait is true, blocks for its response. The single-flight
// invariant means a second SendMessage against a session whose prior
// response has not been collected returns ErrPending rather than
// queuing.
func (sup *Supervisor) SendMessage(sessionID, message string, wait bool, timeoutMs int) (types.IPCResponse, error) {
	s, err := sup.get(sessionID)
	if err != nil {
		return types.IPCResponse{}, err
	}

	s.acquireUsage()
	defer s.releaseUsage()

	if !s.isActive() {
		return types.IPCResponse{}, ErrInactive
	}

	s.stateMu.Lock()
	if s.hasPendingRequest {
		pendingText := s.pendingRequestText
		s.stateMu.Unlock()
		return types.IPCResponse{}, &PendingError{PendingText: pendingText}
	}
	s.hasPendingRequest = true
	s.pendingRequestText = message
	s.responseBuffer = nil
	s.lastActivity = time.Now()
	s.stateMu.Unlock()

	if err := s.sendRequest(types.MethodProcessInput, types.ProcessInputParams{Message: message}); err != nil {
		return types.IPCResponse{}, fmt.Errorf("session: send message: %w", err)
	}

	if !wait {
		return types.IPCResponse{}, nil
	}
	return s.waitForResponse(timeoutMs)
}

// WaitForResponse collects the response to a request already sent by
// SendMessage(wait=false) or by a previous timed-out WaitForResponse.
func (sup *Supervisor) WaitForResponse(sessionID string, timeoutMs int) (types.IPCResponse, error) {
	s, err := sup.get(sessionID)
	if err != nil {
		return types.IPCResponse{}, err
	}

	s.acquireUsage()
	defer s.releaseUsage()

	return s.waitForResponse(timeoutMs)
}

// CloseSession asks a session's orchestrator to shut down, waiting for
// any in-flight request to settle first. It gives the orchestrator up
// to gracefulShutdownTimeout to exit before sending SIGKILL.
func (sup *Supervisor) CloseSession(sessionID string) error {
	sup.mu.Lock()
	s, ok := sup.sessions[sessionID]
	sup.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	sup.closeOne(s)

	sup.mu.Lock()
	delete(sup.sessions, sessionID)
	if sup.binaryToSession[s.binaryPath] == sessionID {
		delete(sup.binaryToSession, s.binaryPath)
	}
	sup.mu.Unlock()

	return nil
}

// closeOne runs the graceful-then-forceful shutdown sequence for a
// single session and leaves it fully torn down (pipes closed, reader
// stopped, directory removed). It does not touch the supervisor's maps.
func (sup *Supervisor) closeOne(s *session) {
	s.stateMu.Lock()
	s.active = false
	s.stateMu.Unlock()

	s.waitForIdle()

	if s.requestPipeFile != nil {
		_ = s.sendRequest(types.MethodShutdown, struct{}{})
	}

	deadline := time.Now().Add(gracefulShutdownTimeout)
	for time.Now().Before(deadline) {
		if !ipc.IsAlive(s.orchestratorPID) {
			break
		}
		time.Sleep(1 * time.Second)
	}

	s.readerShouldStop = true
	if ipc.IsAlive(s.orchestratorPID) {
		_ = ipc.Kill(s.orchestratorPID)
	}
	if s.requestPipeFile != nil {
		_ = s.requestPipeFile.Close()
	}
	<-s.readerDone
	if s.responsePipeFile != nil {
		_ = s.responsePipeFile.Close()
	}
	_, _ = ipc.ReapIfChild(s.orchestratorPID)

	if err := os.RemoveAll(s.dir); err != nil {
		sup.log.Warn().Err(err).Str("session_id", s.sessionID).Msg("failed to clean up session directory")
	}
}

// CloseAllSessions tears down every live session, overlapping their
// graceful-shutdown wait windows instead of waiting out each one in
// turn: every orchestrator is asked to shut down first, then the
// single 60-second window is spent polling all of them together.
func (sup *Supervisor) CloseAllSessions() {
	sup.mu.Lock()
	all := make([]*session, 0, len(sup.sessions))
	for _, s := range sup.sessions {
		all = append(all, s)
	}
	sup.mu.Unlock()

	for _, s := range all {
		s.stateMu.Lock()
		s.active = false
		s.stateMu.Unlock()
	}
	for _, s := range all {
		s.waitForIdle()
		if s.requestPipeFile != nil {
			_ = s.sendRequest(types.MethodShutdown, struct{}{})
		}
	}

	deadline := time.Now().Add(gracefulShutdownTimeout)
	for time.Now().Before(deadline) {
		allDead := true
		for _, s := range all {
			if ipc.IsAlive(s.orchestratorPID) {
				allDead = false
				break
			}
		}
		if allDead {
			break
		}
		time.Sleep(1 * time.Second)
	}

	for _, s := range all {
		s.readerShouldStop = true
		if ipc.IsAlive(s.orchestratorPID) {
			_ = ipc.Kill(s.orchestratorPID)
		}
		if s.requestPipeFile != nil {
			_ = s.requestPipeFile.Close()
		}
		<-s.readerDone
		if s.responsePipeFile != nil {
			_ = s.responsePipeFile.Close()
		}
		_, _ = ipc.ReapIfChild(s.orchestratorPID)
		_ = os.RemoveAll(s.dir)
	}

	sup.mu.Lock()
	sup.sessions = make(map[string]*session)
	sup.binaryToSession = make(map[string]string)
	sup.mu.Unlock()
}

// ForceKillAllSessions immediately SIGKILLs every orchestrator without
// waiting for graceful exit. Reader goroutines are signalled to stop
// but not joined, since a killed orchestrator's response pipe may
// never see EOF promptly.
func (sup *Supervisor) ForceKillAllSessions() {
	sup.mu.Lock()
	all := make([]*session, 0, len(sup.sessions))
	for _, s := range sup.sessions {
		all = append(all, s)
	}
	sup.sessions = make(map[string]*session)
	sup.binaryToSession = make(map[string]string)
	sup.mu.Unlock()

	for _, s := range all {
		s.readerShouldStop = true
		if ipc.IsAlive(s.orchestratorPID) {
			_ = ipc.Kill(s.orchestratorPID)
		}
		_, _ = ipc.ReapIfChild(s.orchestratorPID)
		_ = os.RemoveAll(s.dir)
	}
}

// GetSessionStatus returns a read-only snapshot of one session.
func (sup *Supervisor) GetSessionStatus(sessionID string) (types.SessionInfo, error) {
	s, err := sup.get(sessionID)
	if err != nil {
		return types.SessionInfo{}, err
	}
	return s.info(), nil
}

// ListSessions returns a snapshot of every session currently tracked.
func (sup *Supervisor) ListSessions() []types.SessionInfo {
	sup.mu.Lock()
	defer sup.mu.Unlock()

	out := make([]types.SessionInfo, 0, len(sup.sessions))
	for _, s := range sup.sessions {
		out = append(out, s.info())
	}
	return out
}

func (sup *Supervisor) get(sessionID string) (*session, error) {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	s, ok := sup.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (s *session) isActive() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.active
}
