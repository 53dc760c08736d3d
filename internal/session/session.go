package session

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

// session is the supervisor's private handle on one orchestrator
// process. All exported operations go through *Supervisor; callers
// never see this type directly.
type session struct {
	sessionID  string
	binaryPath string

	dir          string
	stateFile    string
	requestPipe  string
	responsePipe string

	createdAt    time.Time
	lastActivity time.Time

	orchestratorPID int

	requestPipeFile  *os.File
	responsePipeFile *os.File

	// active gates new send_message calls; set false the instant
	// close_session begins.
	active bool

	// stateMu guards hasPendingRequest, pendingRequestText and
	// responseBuffer, and is paired with responseCond.
	stateMu            sync.Mutex
	responseCond       *sync.Cond
	hasPendingRequest  bool
	pendingRequestText string
	responseBuffer     []types.IPCResponse

	// usageMu/usageCond/usageCount implement the close-safety rule:
	// close_session waits for usageCount to reach zero before tearing
	// the session down.
	usageMu    sync.Mutex
	usageCond  *sync.Cond
	usageCount int

	readerShouldStop bool
	readerDone       chan struct{}
}

func newSession(sessionID, binaryPath, dir string) *session {
	s := &session{
		sessionID:    sessionID,
		binaryPath:   binaryPath,
		dir:          dir,
		stateFile:    filepath.Join(dir, "state.json"),
		requestPipe:  filepath.Join(dir, "request.pipe"),
		responsePipe: filepath.Join(dir, "response.pipe"),
		createdAt:    time.Now(),
		active:       true,
		readerDone:   make(chan struct{}),
	}
	s.lastActivity = s.createdAt
	s.responseCond = sync.NewCond(&s.stateMu)
	s.usageCond = sync.NewCond(&s.usageMu)
	return s
}

func (s *session) acquireUsage() {
	s.usageMu.Lock()
	s.usageCount++
	s.usageMu.Unlock()
}

func (s *session) releaseUsage() {
	s.usageMu.Lock()
	s.usageCount--
	if s.usageCount == 0 {
		s.usageCond.Broadcast()
	}
	s.usageMu.Unlock()
}

func (s *session) waitForIdle() {
	s.usageMu.Lock()
	for s.usageCount > 0 {
		s.usageCond.Wait()
	}
	s.usageMu.Unlock()
}

func (s *session) info() types.SessionInfo {
	state := types.SessionReady
	s.stateMu.Lock()
	if !s.active {
		state = types.SessionDead
	} else if s.hasPendingRequest {
		state = types.SessionBusy
	}
	s.stateMu.Unlock()

	return types.SessionInfo{
		SessionID:  s.sessionID,
		BinaryPath: s.binaryPath,
		State:      state,
		PID:        s.orchestratorPID,
		CreatedAt:  s.createdAt,
	}
}

func (s *session) writeStateFile() error {
	state := types.SessionFile{
		SessionID:       s.sessionID,
		BinaryPath:      s.binaryPath,
		OrchestratorPID: s.orchestratorPID,
	}
	return writeJSONFile(s.stateFile, state)
}
