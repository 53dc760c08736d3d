package session

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shells-above/ida-swarm-sub005/internal/ipc"
	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

func errorResponse(msg string) types.IPCResponse {
	return types.IPCResponse{Error: msg}
}

// runReader owns the response pipe for the full session lifetime. It
// opens the pipe for reading (blocking until the orchestrator opens it
// for writing), then loops reading framed responses until told to
// stop, EOF, or a protocol error. Exactly one response is ever pushed
// per request, so the buffer holds at most one pending item by
// construction of the single-flight invariant upstream.
func (s *session) runReader(log zerolog.Logger) {
	defer close(s.readerDone)

	f, err := ipc.OpenReadBlocking(s.responsePipe)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.sessionID).Msg("failed to open response pipe")
		s.pushResponse(errorResponse(fmt.Sprintf("Failed to open response pipe: %v", err)))
		return
	}
	s.responsePipeFile = f
	defer f.Close()

	reader := ipc.NewBufferedReader(f)

	for !s.readerShouldStop {
		body, err := ipc.ReadFrame(reader)
		if err != nil {
			if err == ipc.ErrClosed {
				if !ipc.IsAlive(s.orchestratorPID) {
					log.Warn().Str("session_id", s.sessionID).Int("pid", s.orchestratorPID).Msg("orchestrator process terminated")
					s.pushResponse(errorResponse(fmt.Sprintf("Orchestrator process terminated (PID %d)", s.orchestratorPID)))
					s.stateMu.Lock()
					s.active = false
					s.stateMu.Unlock()
				}
			} else {
				log.Error().Err(err).Str("session_id", s.sessionID).Msg("pipe read error")
				s.pushResponse(errorResponse(fmt.Sprintf("Pipe read error: %v", err)))
			}
			return
		}

		var resp types.IPCResponse
		if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
			log.Error().Err(jsonErr).Str("session_id", s.sessionID).Msg("json parse error in response")
			s.pushResponse(errorResponse(fmt.Sprintf("JSON parse error: %v", jsonErr)))
			return
		}
		s.pushResponse(resp)
	}
}

func (s *session) pushResponse(resp types.IPCResponse) {
	s.stateMu.Lock()
	s.responseBuffer = append(s.responseBuffer, resp)
	s.stateMu.Unlock()
	s.responseCond.Broadcast()
}
