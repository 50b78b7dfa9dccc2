// ABOUTME: MCP resource implementations for the gym tracker.
// ABOUTME: Provides gym://today, gym://session/active, and gym://prs resources.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/storage"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/userctx"
)

const (
	uriToday         = "gym://today"
	uriActiveSession = "gym://session/active"
	uriPRs           = "gym://prs"
)

func (s *Server) registerResources() {
	// gym://today - today's planned day of the active program
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         uriToday,
		Name:        "Today's Plan",
		Description: "Today's program day, inferred from the weekday in the user's timezone",
		MIMEType:    "application/json",
	}, s.handleTodayResource)

	// gym://session/active - the open session with its sets
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         uriActiveSession,
		Name:        "Active Session",
		Description: "The open workout session with exercises and sets",
		MIMEType:    "application/json",
	}, s.handleActiveSessionResource)

	// gym://prs - current personal records
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         uriPRs,
		Name:        "Personal Records",
		Description: "Current personal records for every exercise",
		MIMEType:    "application/json",
	}, s.handlePRsResource)
}

// Resource handlers

func (s *Server) handleTodayResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	ctx = userctx.WithUserID(ctx, s.userID)
	tz, err := s.timezoneFromProfile(ctx, "")
	if err != nil {
		return nil, err
	}
	result := map[string]any{}
	plan, err := s.repo.InferTodayDay(ctx, 0, tz)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		result["message"] = "No active program."
	case err != nil:
		return nil, fmt.Errorf("failed to infer today's day: %w", err)
	default:
		result["plan"] = plan
	}
	return jsonResource(uriToday, result)
}

func (s *Server) handleActiveSessionResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	ctx = userctx.WithUserID(ctx, s.userID)
	sess, err := s.repo.ActiveSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}
	result := map[string]any{"active": sess != nil}
	if sess != nil {
		result["session"] = sess
	}
	return jsonResource(uriActiveSession, result)
}

func (s *Server) handlePRsResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	ctx = userctx.WithUserID(ctx, s.userID)
	records, err := s.repo.ListPRs(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list personal records: %w", err)
	}

	// Group by exercise for easier reading.
	byExercise := make(map[string]map[string]float64)
	for _, pr := range records {
		if byExercise[pr.ExerciseName] == nil {
			byExercise[pr.ExerciseName] = make(map[string]float64)
		}
		byExercise[pr.ExerciseName][pr.RecordType] = pr.Value
	}
	return jsonResource(uriPRs, map[string]any{
		"personal_records": byExercise,
		"count":            len(records),
	})
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
