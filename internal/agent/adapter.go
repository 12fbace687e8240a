// SPDX-License-Identifier: Apache-2.0

// Package agent wraps LLM-backed reasoning steps behind a single atomic
// call. An agent may invoke bounded tool functions before producing output
// that validates against its target schema; those tool round-trips happen
// entirely inside the call, so the orchestration engine records the whole
// thing as one step and never needs to replay internal non-determinism.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adiadia/feedback-orchestrator/internal/domain"
	"github.com/adiadia/feedback-orchestrator/internal/metrics"
)

// ToolCall is one tool invocation requested by the chat client.
type ToolCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ToolResult carries a tool outcome back into the conversation.
type ToolResult struct {
	Name   string `json:"name"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ChatRequest is one round of the agent conversation.
type ChatRequest struct {
	Agent        string
	Instructions string
	Input        json.RawMessage
	Tools        []Tool
	ToolResults  []ToolResult
}

// ChatResponse is either a batch of tool calls or the final content.
type ChatResponse struct {
	ToolCalls []ToolCall
	Content   json.RawMessage
}

// ChatClient is the reasoning boundary. The local deterministic client in
// this package serves tests and offline runs; a real LLM client implements
// the same interface.
type ChatClient interface {
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// Definition describes one agent: its instructions, the tools it may use
// and the schema its output must validate against.
type Definition struct {
	Name         string
	Instructions string
	Tools        []string
	Validate     func(json.RawMessage) error
}

type Deps struct {
	Client ChatClient
	Logger *slog.Logger
	Tools  []Tool
	// MaxToolRounds bounds tool round-trips per call. Default 8.
	MaxToolRounds int
	// CallTimeout bounds one whole agent call. A timed-out call is retried
	// once, then fails permanently - agent calls are expensive. Default 60s.
	CallTimeout time.Duration
}

// Adapter runs registered agents against the chat client.
type Adapter struct {
	client        ChatClient
	logger        *slog.Logger
	tools         map[string]Tool
	agents        map[string]Definition
	maxToolRounds int
	callTimeout   time.Duration
}

func NewAdapter(deps Deps) *Adapter {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}
	rounds := deps.MaxToolRounds
	if rounds <= 0 {
		rounds = 8
	}
	timeout := deps.CallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	tools := make(map[string]Tool, len(deps.Tools))
	for _, t := range deps.Tools {
		tools[t.Name] = t
	}

	return &Adapter{
		client:        deps.Client,
		logger:        l,
		tools:         tools,
		agents:        make(map[string]Definition),
		maxToolRounds: rounds,
		callTimeout:   timeout,
	}
}

// RegisterAgent adds an agent definition.
func (a *Adapter) RegisterAgent(def Definition) {
	a.agents[def.Name] = def
}

// Run performs one atomic agent call: the tool loop, the final response and
// schema validation. Schema violations and timeouts get exactly one retry
// of the whole call; the attempt count that produced the outcome is
// returned for audit.
func (a *Adapter) Run(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, int, error) {
	def, ok := a.agents[name]
	if !ok {
		return nil, 1, domain.Permanent(fmt.Errorf("no agent registered under %q", name))
	}

	var lastErr error
	attempts := 1
	for attempt := 1; attempt <= 2; attempt++ {
		attempts = attempt
		out, err := a.runOnce(ctx, def, input)
		if err == nil {
			return out, attempt, nil
		}
		lastErr = err

		retryable := domain.KindOf(err) == domain.ErrorSchema || errors.Is(err, context.DeadlineExceeded)
		if !retryable || attempt == 2 {
			break
		}
		a.logger.Warn("agent call failed - retrying once",
			"agent", name,
			"error", err,
		)
	}

	if errors.Is(lastErr, context.DeadlineExceeded) {
		lastErr = domain.Permanent(fmt.Errorf("agent %s timed out after retry", name))
	}
	if domain.KindOf(lastErr) == domain.ErrorSchema {
		lastErr = domain.SchemaViolation(fmt.Errorf("agent %s output rejected after retry: %w", name, lastErr))
	}
	return nil, attempts, lastErr
}

func (a *Adapter) runOnce(ctx context.Context, def Definition, input json.RawMessage) (json.RawMessage, error) {
	cctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	req := ChatRequest{
		Agent:        def.Name,
		Instructions: def.Instructions,
		Input:        input,
		Tools:        a.toolsFor(def),
	}

	for round := 0; round <= a.maxToolRounds; round++ {
		resp, err := a.client.Complete(cctx, req)
		if err != nil {
			if cctx.Err() != nil {
				return nil, cctx.Err()
			}
			return nil, domain.Transient(fmt.Errorf("agent %s completion: %w", def.Name, err))
		}

		if len(resp.ToolCalls) == 0 {
			if err := def.Validate(resp.Content); err != nil {
				return nil, domain.SchemaViolation(fmt.Errorf("agent %s output: %w", def.Name, err))
			}
			return resp.Content, nil
		}

		req.ToolResults = append(req.ToolResults, a.dispatch(cctx, def, resp.ToolCalls)...)
	}

	return nil, domain.Permanent(fmt.Errorf("agent %s exceeded %d tool rounds", def.Name, a.maxToolRounds))
}

// dispatch resolves one batch of tool calls. Tool errors are fed back into
// the conversation rather than failing the call; the agent decides what to
// do with them.
func (a *Adapter) dispatch(ctx context.Context, def Definition, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		metrics.IncAgentToolCall(call.Name)

		tool, ok := a.tools[call.Name]
		if !ok || !def.allows(call.Name) {
			results = append(results, ToolResult{Name: call.Name, Error: "tool not available"})
			continue
		}

		out, err := tool.Fn(ctx, call.Args)
		if err != nil {
			a.logger.Warn("tool call failed",
				"agent", def.Name,
				"tool", call.Name,
				"error", err,
			)
			results = append(results, ToolResult{Name: call.Name, Error: err.Error()})
			continue
		}
		results = append(results, ToolResult{Name: call.Name, Output: out})
	}
	return results
}

func (a *Adapter) toolsFor(def Definition) []Tool {
	tools := make([]Tool, 0, len(def.Tools))
	for _, name := range def.Tools {
		if t, ok := a.tools[name]; ok {
			tools = append(tools, t)
		}
	}
	return tools
}

func (d Definition) allows(toolName string) bool {
	for _, n := range d.Tools {
		if n == toolName {
			return true
		}
	}
	return false
}
