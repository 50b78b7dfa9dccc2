// ABOUTME: Tool-call instrumentation and the structured JSON error envelope.
// ABOUTME: Every tool runs through withToolCall: user scoping, request ids, logging and metrics.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/logging"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/storage"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/userctx"
)

// Error codes returned in the envelope.
const (
	codeNotFound   = "not_found"
	codeValidation = "validation"
	codeConflict   = "conflict"
	codeTimeout    = "timeout"
	codeStorage    = "storage"
)

type toolErrorEnvelope struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Field     string `json:"field,omitempty"`
	SessionID int64  `json:"session_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type toolError struct {
	Envelope toolErrorEnvelope
}

func (e toolError) Error() string {
	encoded, err := json.Marshal(e.Envelope)
	if err != nil {
		return `{"error":"failed to encode error envelope","code":"storage"}`
	}
	return string(encoded)
}

func classifyToolError(err error) toolErrorEnvelope {
	env := toolErrorEnvelope{Error: err.Error(), Code: codeStorage}
	var validation *storage.ValidationError
	var conflict *storage.ConflictError
	switch {
	case errors.As(err, &validation):
		env.Code = codeValidation
		env.Field = validation.Field
		env.Error = validation.Message
	case errors.As(err, &conflict):
		env.Code = codeConflict
		env.SessionID = conflict.SessionID
	case errors.Is(err, storage.ErrNotFound):
		env.Code = codeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		env.Code = codeTimeout
	}
	return env
}

func invalidInput(field, message string) error {
	return &storage.ValidationError{Field: field, Message: message}
}

// withToolCall scopes the call to the configured user and turns handler
// errors into the JSON envelope. Outcomes are logged and counted per tool.
func withToolCall[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input In) (*mcp.CallToolResult, Out, error) {
		requestID := uuid.NewString()
		logger := s.logger.With("tool", name, "request_id", requestID)
		ctx = userctx.WithUserID(ctx, s.userID)
		ctx = logging.WithLogger(ctx, logger)

		start := time.Now()
		res, out, err := h(ctx, req, input)
		elapsed := time.Since(start)

		if err == nil {
			s.recorder.ToolCall(name, "ok", elapsed)
			logger.Debug("tool call", "duration", elapsed)
			return res, out, nil
		}

		env := classifyToolError(err)
		env.RequestID = requestID
		s.recorder.ToolCall(name, env.Code, elapsed)
		if env.Code == codeStorage || env.Code == codeTimeout {
			logger.Error("tool call failed", "code", env.Code, "error", err, "duration", elapsed)
		} else {
			logger.Info("tool call rejected", "code", env.Code, "error", err, "duration", elapsed)
		}
		var zero Out
		return nil, zero, toolError{Envelope: env}
	}
}
