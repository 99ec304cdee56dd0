package actor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lyzr/workflow-engine/internal/graph"
	"github.com/lyzr/workflow-engine/internal/token"
)

// ProgramRunner invokes a "code"-kind program registered by the host
// application; it is synchronous and deterministic (§4.5).
type ProgramRunner func(ctx context.Context, activity *graph.Activity, tok *token.Token, view *ContextView) (map[string]interface{}, error)

// ApplicationStrategy invokes an activity's bound programs: "code" kind
// programs dispatch to a registered ProgramRunner by Ref; "mcp_tool" kind
// programs POST the current token data to Ref as JSON, grounded on the
// teacher's HTTPWorker.executeHTTPRequest (30s-timeout client, JSON body,
// decode response as the outputs map). Every mcp_tool Ref is checked by
// checkOutboundRef before the request is built, since an activity's Ref is
// workflow document data, not code the host wrote.
type ApplicationStrategy struct {
	runners    map[string]ProgramRunner
	httpClient *http.Client
}

// NewApplicationStrategy creates an application strategy with a registry
// of in-process code runners. httpClient defaults to a 30s timeout client
// if nil.
func NewApplicationStrategy(runners map[string]ProgramRunner, httpClient *http.Client) *ApplicationStrategy {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ApplicationStrategy{runners: runners, httpClient: httpClient}
}

func (s *ApplicationStrategy) Execute(ctx context.Context, activity *graph.Activity, tok *token.Token, view *ContextView) (Outcome, error) {
	rm := captureStart()

	if len(activity.Programs) == 0 {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("application activity %q has no bound programs", activity.ID)}, nil
	}

	outputs := make(map[string]interface{})
	for _, p := range activity.Programs {
		var (
			out map[string]interface{}
			err error
		)
		switch p.Kind {
		case "code":
			out, err = s.runCode(ctx, p, activity, tok, view)
		case "mcp_tool":
			out, err = s.runHTTP(ctx, p, tok)
		default:
			err = fmt.Errorf("unknown program kind %q", p.Kind)
		}
		if err != nil {
			return Outcome{Status: StatusFailed, Metrics: rm.finalize(), Err: err}, nil
		}
		for k, v := range out {
			outputs[k] = v
		}
	}

	return Outcome{Status: StatusOK, Outputs: outputs, Metrics: rm.finalize()}, nil
}

func (s *ApplicationStrategy) runCode(ctx context.Context, p graph.Program, activity *graph.Activity, tok *token.Token, view *ContextView) (map[string]interface{}, error) {
	runner, ok := s.runners[p.Ref]
	if !ok {
		return nil, fmt.Errorf("no registered runner for code program %q", p.Ref)
	}
	return runner(ctx, activity, tok, view)
}

func (s *ApplicationStrategy) runHTTP(ctx context.Context, p graph.Program, tok *token.Token) (map[string]interface{}, error) {
	if err := checkOutboundRef("mcp_tool ref", p.Ref); err != nil {
		return nil, err
	}

	body, err := json.Marshal(tok.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Ref, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mcp_tool request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mcp_tool request returned status %d: %s", resp.StatusCode, string(raw))
	}

	var out map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode response body: %w", err)
		}
	}
	return out, nil
}
