package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/shells-above/ida-swarm-sub005/internal/ipc"
	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

// sendRequest marshals and writes one framed request down the session's
// request pipe. Callers hold no lock across this call; serialization
// against concurrent sends is the single-flight invariant enforced one
// layer up in Supervisor.SendMessage.
func (s *session) sendRequest(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("session: marshal %s params: %w", method, err)
	}

	req := types.IPCRequest{
		Type:   "request",
		ID:     "msg_" + ulid.Make().String(),
		Method: method,
		Params: raw,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("session: marshal request envelope: %w", err)
	}

	return ipc.WriteFrame(s.requestPipeFile, body)
}

// waitForResponse blocks until a response has been pushed by the reader
// goroutine or timeoutMs elapses. On timeout hasPendingRequest is left
// set so a later WaitForResponse call can still collect the eventual
// response instead of the caller resending the request.
func (s *session) waitForResponse(timeoutMs int) (types.IPCResponse, error) {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		select {
		case <-timer.C:
			s.stateMu.Lock()
			s.responseCond.Broadcast()
			s.stateMu.Unlock()
		case <-stop:
		}
	}()

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	for len(s.responseBuffer) == 0 {
		if !time.Now().Before(deadline) {
			return types.IPCResponse{}, ErrTimeout
		}
		s.responseCond.Wait()
	}

	resp := s.responseBuffer[0]
	s.responseBuffer = s.responseBuffer[1:]
	s.hasPendingRequest = false
	return resp, nil
}
