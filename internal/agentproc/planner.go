package agentproc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shells-above/ida-swarm-sub005/internal/credential"
	"github.com/shells-above/ida-swarm-sub005/internal/httpclient"
)

// rateLimitBackoffSeconds is how long a provider account is benched
// when its request still answers 429 after httpclient's retries are
// exhausted. It equals httpclient's 60s default retry-after; the
// upstream response's own Retry-After value is not used here.
const rateLimitBackoffSeconds = 60

// HTTPPlanner asks an upstream LLM endpoint for the next action,
// borrowing a credential from pool for each call. The request/response
// wire format belongs entirely to whatever provider BaseURL points at
// (out of scope for this project); HTTPPlanner only owns the
// credential-borrowing and retry contract around that call, not the
// prompt format itself.
type HTTPPlanner struct {
	Client  *httpclient.Client
	Pool    *credential.Pool
	BaseURL string
}

type plannerRequest struct {
	Task    string `json:"task"`
	History []Turn `json:"history"`
}

type plannerResponse struct {
	Tool    string          `json:"tool"`
	Params  json.RawMessage `json:"params"`
	Address uint64          `json:"address"`
	Note    string          `json:"note"`
	Done    bool            `json:"done"`
	Result  string          `json:"result"`
}

// NextAction implements Planner.
func (p *HTTPPlanner) NextAction(ctx context.Context, task string, history []Turn) (Action, error) {
	creds, err := p.Pool.GetBestAvailableAccount()
	if err != nil {
		return Action{}, fmt.Errorf("agentproc: borrow credential: %w", err)
	}

	body, err := json.Marshal(plannerRequest{Task: task, History: history})
	if err != nil {
		return Action{}, fmt.Errorf("agentproc: marshal planner request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/next-action", bytes.NewReader(body))
	if err != nil {
		return Action{}, fmt.Errorf("agentproc: build planner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := p.Client.Do(req)
	if err != nil {
		var retryable *httpclient.RetryableError
		if errors.As(err, &retryable) && retryable.StatusCode == http.StatusTooManyRequests {
			if markErr := p.Pool.MarkRateLimited(creds.AccountUUID, rateLimitBackoffSeconds); markErr != nil {
				return Action{}, fmt.Errorf("agentproc: mark rate limited: %w", markErr)
			}
		}
		return Action{}, fmt.Errorf("agentproc: planner request: %w", err)
	}
	defer resp.Body.Close()

	var out plannerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Action{}, fmt.Errorf("agentproc: decode planner response: %w", err)
	}

	return Action{
		Tool:    out.Tool,
		Params:  out.Params,
		Address: out.Address,
		Note:    out.Note,
		Done:    out.Done,
		Result:  out.Result,
	}, nil
}
