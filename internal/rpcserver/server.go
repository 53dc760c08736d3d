package rpcserver

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

// defaultSendMessageTimeout bounds how long the send_message tool
// waits for a response before reporting a timeout to the client. The
// internal supervisor API supports a caller-chosen timeout per call;
// this server always asks for one generous window since its tool
// surface exposes no timeout parameter of its own.
const defaultSendMessageTimeout = 5 * time.Minute

// Supervisor is the subset of session.Supervisor this server drives.
type Supervisor interface {
	CreateSession(binaryPath, task string) (string, types.IPCResponse, error)
	SendMessage(sessionID, message string, wait bool, timeoutMs int) (types.IPCResponse, error)
	CloseSession(sessionID string) error
}

// Server speaks JSON-RPC 2.0 over a pair of byte streams, following the
// request/response cycle: a client must send initialize followed by
// the notifications/initialized notification before tools/list or
// tools/call is accepted; those two are rejected with
// ErrCodeNotInitialized until then. ping is answered in any state.
type Server struct {
	supervisor Supervisor
	log        zerolog.Logger

	in  *bufio.Scanner
	out io.Writer

	writeMu     sync.Mutex
	initialized atomic.Bool
}

// New creates a Server reading JSON-RPC requests (one per line, or a
// JSON array per line for batches) from in and writing responses to
// out.
func New(supervisor Supervisor, in io.Reader, out io.Writer, log zerolog.Logger) *Server {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	return &Server{
		supervisor: supervisor,
		log:        log.With().Str("component", "rpcserver").Logger(),
		in:         scanner,
		out:        out,
	}
}

// Run reads requests until the input stream is exhausted or returns an
// error other than io.EOF.
func (s *Server) Run() error {
	for s.in.Scan() {
		line := s.in.Bytes()
		if len(bytesTrimSpace(line)) == 0 {
			continue
		}
		s.handleLine(append([]byte(nil), line...))
	}
	return s.in.Err()
}

func bytesTrimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func (s *Server) handleLine(line []byte) {
	trimmed := bytesTrimSpace(line)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		s.handleBatch(trimmed)
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.write(newErrorResponse(nil, ErrCodeParseError, "parse error: "+err.Error()))
		return
	}
	if resp, ok := s.dispatch(req); ok {
		s.write(resp)
	}
}

func (s *Server) handleBatch(line []byte) {
	var raw []json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		s.write(newErrorResponse(nil, ErrCodeParseError, "parse error: "+err.Error()))
		return
	}
	if len(raw) == 0 {
		s.write(newErrorResponse(nil, ErrCodeInvalidRequest, "invalid request: empty batch"))
		return
	}

	var responses []Response
	for _, item := range raw {
		var req Request
		if err := json.Unmarshal(item, &req); err != nil {
			responses = append(responses, newErrorResponse(nil, ErrCodeInvalidRequest, "invalid request: "+err.Error()))
			continue
		}
		if req.Method == "initialize" {
			responses = append(responses, newErrorResponse(req.ID, ErrCodeInvalidRequest, "invalid request: initialize is not allowed inside a batch"))
			continue
		}
		if resp, ok := s.dispatch(req); ok {
			responses = append(responses, resp)
		}
	}
	if len(responses) == 0 {
		return
	}
	s.writeBatch(responses)
}

// dispatch runs one request and returns its response. ok is false for
// notifications, which receive no response at all.
func (s *Server) dispatch(req Request) (Response, bool) {
	if req.JSONRPC != "2.0" || req.Method == "" {
		if req.IsNotification() {
			return Response{}, false
		}
		return newErrorResponse(req.ID, ErrCodeInvalidRequest, "invalid request"), true
	}

	switch req.Method {
	case "initialize":
		return newResultResponse(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "ida-swarm-mcp", Version: "1.0.0"},
			Capabilities:    Capabilities{Tools: map[string]any{}},
			Instructions:    "Use start_analysis_session to begin analyzing a binary, then send_message to continue the conversation.",
		}), true

	case "notifications/initialized":
		s.initialized.Store(true)
		return Response{}, false

	case "ping":
		return newResultResponse(req.ID, map[string]any{}), true

	case "tools/list":
		if !s.initialized.Load() {
			return s.notInitialized(req), true
		}
		return newResultResponse(req.ID, map[string]any{"tools": toolDescriptors}), true

	case "tools/call":
		if !s.initialized.Load() {
			return s.notInitialized(req), true
		}
		return s.handleToolsCall(req), true

	default:
		if req.IsNotification() {
			return Response{}, false
		}
		return newErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method)), true
	}
}

func (s *Server) notInitialized(req Request) Response {
	return newErrorResponse(req.ID, ErrCodeNotInitialized, "server has not completed initialization")
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolsCall(req Request) Response {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newErrorResponse(req.ID, ErrCodeInvalidRequest, "invalid request: "+err.Error())
	}

	var result CallToolResult
	switch params.Name {
	case "start_analysis_session":
		result = s.callStartAnalysisSession(params.Arguments)
	case "send_message":
		result = s.callSendMessage(params.Arguments)
	case "close_session":
		result = s.callCloseSession(params.Arguments)
	default:
		return newErrorResponse(req.ID, ErrCodeInvalidRequest, fmt.Sprintf("unknown tool: %s", params.Name))
	}

	return newResultResponse(req.ID, result)
}

func (s *Server) callStartAnalysisSession(raw json.RawMessage) CallToolResult {
	var p startAnalysisSessionParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return errorResult("invalid arguments: " + err.Error())
	}
	if p.BinaryPath == "" || p.Task == "" {
		return errorResult("binary_path and task are required")
	}

	sessionID, resp, err := s.supervisor.CreateSession(p.BinaryPath, p.Task)
	if err != nil {
		return errorResult(err.Error())
	}
	return renderIPCResponse(sessionID, resp)
}

func (s *Server) callSendMessage(raw json.RawMessage) CallToolResult {
	var p sendMessageParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return errorResult("invalid arguments: " + err.Error())
	}
	if p.SessionID == "" || p.Message == "" {
		return errorResult("session_id and message are required")
	}

	resp, err := s.supervisor.SendMessage(p.SessionID, p.Message, true, int(defaultSendMessageTimeout.Milliseconds()))
	if err != nil {
		return errorResult(err.Error())
	}
	return renderIPCResponse(p.SessionID, resp)
}

func (s *Server) callCloseSession(raw json.RawMessage) CallToolResult {
	var p closeSessionParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return errorResult("invalid arguments: " + err.Error())
	}
	if p.SessionID == "" {
		return errorResult("session_id is required")
	}

	if err := s.supervisor.CloseSession(p.SessionID); err != nil {
		return errorResult(err.Error())
	}
	return textResult("ok")
}

func renderIPCResponse(sessionID string, resp types.IPCResponse) CallToolResult {
	if resp.IsError() {
		return errorResult(resp.Error)
	}
	content := ""
	if resp.Result != nil {
		content = resp.Result.Content
	}
	return textResult(fmt.Sprintf("session %s: %s", sessionID, content))
}

func (s *Server) write(resp Response) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	enc := json.NewEncoder(s.out)
	if err := enc.Encode(resp); err != nil {
		s.log.Error().Err(err).Msg("failed to write response")
	}
}

func (s *Server) writeBatch(responses []Response) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	enc := json.NewEncoder(s.out)
	if err := enc.Encode(responses); err != nil {
		s.log.Error().Err(err).Msg("failed to write batch response")
	}
}
