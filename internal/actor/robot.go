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

// RobotStrategy calls a robot endpoint; absent an endpoint or credential it
// runs in simulation mode identical in contract to a real robot (§4.5).
type RobotStrategy struct {
	httpClient *http.Client
	credential string
}

// NewRobotStrategy creates a robot strategy. credential is a bearer token
// sent with real endpoint calls; an empty credential forces simulation
// mode regardless of whether the activity declares machine_ref.
func NewRobotStrategy(credential string, httpClient *http.Client) *RobotStrategy {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RobotStrategy{credential: credential, httpClient: httpClient}
}

func (s *RobotStrategy) Execute(ctx context.Context, activity *graph.Activity, tok *token.Token, view *ContextView) (Outcome, error) {
	rm := captureStart()

	if activity.MachineRef == "" || s.credential == "" {
		outputs := synthesizeOutputs(activity.OutputSchema)
		metrics := rm.finalize()
		metrics["simulated"] = true
		metrics["estimated_duration_ms"] = int64(250)
		return Outcome{Status: StatusOK, Outputs: outputs, Metrics: metrics}, nil
	}

	if err := checkOutboundRef("robot machine_ref", activity.MachineRef); err != nil {
		return Outcome{Status: StatusFailed, Metrics: rm.finalize(), Err: err}, nil
	}

	body, err := json.Marshal(tok.Data)
	if err != nil {
		return Outcome{Status: StatusFailed, Metrics: rm.finalize(), Err: fmt.Errorf("marshal robot request: %w", err)}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, activity.MachineRef, bytes.NewReader(body))
	if err != nil {
		return Outcome{Status: StatusFailed, Metrics: rm.finalize(), Err: fmt.Errorf("build robot request: %w", err)}, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.credential)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Outcome{Status: StatusFailed, Metrics: rm.finalize(), Err: fmt.Errorf("robot request failed: %w", err)}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{Status: StatusFailed, Metrics: rm.finalize(), Err: fmt.Errorf("read robot response: %w", err)}, nil
	}
	if resp.StatusCode >= 300 {
		return Outcome{Status: StatusFailed, Metrics: rm.finalize(), Err: fmt.Errorf("robot endpoint returned status %d: %s", resp.StatusCode, string(raw))}, nil
	}

	var outputs map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &outputs); err != nil {
			return Outcome{Status: StatusFailed, Metrics: rm.finalize(), Err: fmt.Errorf("decode robot response: %w", err)}, nil
		}
	}

	metrics := rm.finalize()
	metrics["simulated"] = false
	return Outcome{Status: StatusOK, Outputs: outputs, Metrics: metrics}, nil
}
