// ABOUTME: MCP tool implementations for the gym tracker.
// ABOUTME: Action-style tools over profile, catalog, programs, sessions, sets, stats and measurements.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/logging"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/storage"
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_context",
		Description: "Start here. Returns the profile, active program, today's planned day, the open session and a weekly summary",
	}, withToolCall(s, "get_context", s.handleGetContext))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "manage_profile",
		Description: "Get or update the training profile. Unknown keys are kept as extensions; null removes a key",
	}, withToolCall(s, "manage_profile", s.handleManageProfile))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "manage_exercises",
		Description: "Search, resolve, add, update or delete exercises and aliases",
	}, withToolCall(s, "manage_exercises", s.handleManageExercises))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "manage_program",
		Description: "Create, inspect, edit, activate or delete training programs. Every edit creates a new version",
	}, withToolCall(s, "manage_program", s.handleManageProgram))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "log_exercise",
		Description: "Log sets for one exercise, or for several in one transaction. Starts a session when none is open",
	}, withToolCall(s, "log_exercise", s.handleLogExercise))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "log_routine",
		Description: "Log today's planned program day with its targets, applying overrides and skips",
	}, withToolCall(s, "log_routine", s.handleLogRoutine))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "manage_session",
		Description: "Start, end, inspect, list, delete or validate workout sessions",
	}, withToolCall(s, "manage_session", s.handleManageSession))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "edit_log",
		Description: "Edit or delete a logged set, or recompute an exercise's personal records",
	}, withToolCall(s, "edit_log", s.handleEditLog))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_today_plan",
		Description: "Infer today's program day from the weekday in the user's timezone",
	}, withToolCall(s, "get_today_plan", s.handleGetTodayPlan))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_stats",
		Description: "Personal records, PR history and per-session progress for an exercise, or an overall summary",
	}, withToolCall(s, "get_stats", s.handleGetStats))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "manage_measurements",
		Description: "Log, list, fetch the latest or delete body measurements (weight, body_fat, waist, ...)",
	}, withToolCall(s, "manage_measurements", s.handleManageMeasurements))
}

// Tool input types

type getContextInput struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"IANA timezone, defaults to the profile's"`
}

type manageProfileInput struct {
	Action string         `json:"action" jsonschema:"get or update"`
	Data   map[string]any `json:"data,omitempty" jsonschema:"fields to merge for update"`
}

type manageExercisesInput struct {
	Action       string            `json:"action" jsonschema:"search, get, resolve, add, update, delete or add_alias"`
	ID           int64             `json:"id,omitempty"`
	Query        string            `json:"query,omitempty" jsonschema:"search text, or the name to resolve"`
	Name         string            `json:"name,omitempty"`
	Names        map[string]string `json:"names,omitempty" jsonschema:"localized names keyed by locale"`
	MuscleGroup  *string           `json:"muscle_group,omitempty"`
	Equipment    *string           `json:"equipment,omitempty"`
	RepType      string            `json:"rep_type,omitempty" jsonschema:"reps, seconds, meters or calories"`
	ExerciseType string            `json:"exercise_type,omitempty" jsonschema:"strength, mobility, cardio or warmup"`
	Aliases      []string          `json:"aliases,omitempty"`
	Alias        string            `json:"alias,omitempty"`
}

type manageProgramInput struct {
	Action            string              `json:"action" jsonschema:"create, get, list, history, activate, delete, edit, replace or clone_version"`
	ProgramID         int64               `json:"program_id,omitempty" jsonschema:"defaults to the active program for get"`
	Version           int                 `json:"version,omitempty" jsonschema:"version number for get, defaults to the latest"`
	VersionID         int64               `json:"version_id,omitempty" jsonschema:"source version for clone_version"`
	Name              string              `json:"name,omitempty"`
	Description       *string             `json:"description,omitempty"`
	Activate          bool                `json:"activate,omitempty"`
	Days              []storage.DayInput  `json:"days,omitempty" jsonschema:"full day tree for create and replace"`
	Ops               []storage.ProgramOp `json:"ops,omitempty" jsonschema:"structural edits applied to a new version"`
	ChangeDescription *string             `json:"change_description,omitempty"`
}

type logExerciseInput struct {
	Exercise     string             `json:"exercise,omitempty" jsonschema:"exercise name, resolved against the catalog"`
	MuscleGroup  *string            `json:"muscle_group,omitempty"`
	Equipment    *string            `json:"equipment,omitempty"`
	RepType      string             `json:"rep_type,omitempty"`
	ExerciseType string             `json:"exercise_type,omitempty"`
	Sets         int                `json:"sets,omitempty"`
	Reps         any                `json:"reps,omitempty" jsonschema:"reps for every set, or an array with one entry per set"`
	Weight       *float64           `json:"weight,omitempty"`
	Weights      []float64          `json:"weights,omitempty"`
	RPE          *float64           `json:"rpe,omitempty"`
	SetType      string             `json:"set_type,omitempty" jsonschema:"working, warmup, drop or failure"`
	DropPercent  *float64           `json:"drop_percent,omitempty"`
	Notes        *string            `json:"notes,omitempty"`
	SetNotes     any                `json:"set_notes,omitempty"`
	RestSeconds  *int               `json:"rest_seconds,omitempty"`
	GroupID      *int64             `json:"group_id,omitempty"`
	Exercises    []storage.LogEntry `json:"exercises,omitempty" jsonschema:"several exercises logged in one transaction"`
	LoggedAt     string             `json:"logged_at,omitempty" jsonschema:"backdate the sets (RFC3339 or 2006-01-02 15:04)"`
}

func (in logExerciseInput) entry() storage.LogEntry {
	return storage.LogEntry{
		Exercise:     in.Exercise,
		MuscleGroup:  in.MuscleGroup,
		Equipment:    in.Equipment,
		RepType:      in.RepType,
		ExerciseType: in.ExerciseType,
		Sets:         in.Sets,
		Reps:         in.Reps,
		Weight:       in.Weight,
		Weights:      in.Weights,
		RPE:          in.RPE,
		SetType:      in.SetType,
		DropPercent:  in.DropPercent,
		Notes:        in.Notes,
		SetNotes:     in.SetNotes,
		RestSeconds:  in.RestSeconds,
		GroupID:      in.GroupID,
	}
}

type logRoutineInput struct {
	ProgramID int64                     `json:"program_id,omitempty" jsonschema:"defaults to the active program"`
	DayID     *int64                    `json:"day_id,omitempty" jsonschema:"log this day instead of today's"`
	Timezone  string                    `json:"timezone,omitempty"`
	Overrides []storage.RoutineOverride `json:"overrides,omitempty" jsonschema:"actual performance where it differs from the plan"`
	Skip      []string                  `json:"skip,omitempty" jsonschema:"planned exercises that were not done"`
}

type manageSessionInput struct {
	Action       string  `json:"action" jsonschema:"start, end, active, get, list, delete or validate"`
	SessionID    int64   `json:"session_id,omitempty"`
	ProgramDayID *int64  `json:"program_day_id,omitempty" jsonschema:"copy this day's structure into the new session"`
	Notes        *string `json:"notes,omitempty"`
	Validated    *bool   `json:"validated,omitempty" jsonschema:"false keeps the session out of personal records until validated"`
	StartedAt    string  `json:"started_at,omitempty"`
	Limit        int     `json:"limit,omitempty" jsonschema:"max sessions for list (default 10)"`
	Since        string  `json:"since,omitempty"`
}

type editLogInput struct {
	Action   string   `json:"action" jsonschema:"edit, delete or recompute_prs"`
	SetID    int64    `json:"set_id,omitempty"`
	Reps     *int     `json:"reps,omitempty"`
	Weight   *float64 `json:"weight,omitempty"`
	RPE      *float64 `json:"rpe,omitempty"`
	SetType  *string  `json:"set_type,omitempty"`
	Notes    *string  `json:"notes,omitempty"`
	Exercise string   `json:"exercise,omitempty" jsonschema:"exercise for recompute_prs"`
}

type getTodayPlanInput struct {
	ProgramID int64  `json:"program_id,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

type getStatsInput struct {
	Exercise   string `json:"exercise,omitempty" jsonschema:"omit for an overall summary"`
	PeriodDays int    `json:"period_days,omitempty" jsonschema:"look-back window in days, 0 for all history"`
	RecordType string `json:"record_type,omitempty" jsonschema:"restrict PR history to one record type"`
}

type manageMeasurementsInput struct {
	Action     string   `json:"action" jsonschema:"log, list, latest or delete"`
	ID         int64    `json:"id,omitempty"`
	Type       string   `json:"type,omitempty" jsonschema:"weight, body_fat, muscle_mass, neck, chest, waist, hips, arm, thigh, calf or resting_heart_rate"`
	Value      float64  `json:"value,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	MeasuredAt string   `json:"measured_at,omitempty"`
	Notes      *string  `json:"notes,omitempty"`
	Limit      int      `json:"limit,omitempty" jsonschema:"max results for list (default 20)"`
	Types      []string `json:"types,omitempty" jsonschema:"types for latest, defaults to all"`
}

// Tool handlers

func (s *Server) handleGetContext(ctx context.Context, req *mcp.CallToolRequest, input getContextInput) (*mcp.CallToolResult, any, error) {
	profile, err := s.repo.GetProfile(ctx)
	if err != nil {
		return nil, nil, err
	}
	tz := s.timezoneFor(profile, input.Timezone)

	result := map[string]any{
		"profile":  profile,
		"timezone": tz,
	}
	var setup []string
	if profile.UpdatedAt == nil {
		setup = append(setup, "profile")
	}

	program, err := s.repo.ActiveProgram(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		setup = append(setup, "program")
	case err != nil:
		return nil, nil, err
	default:
		result["active_program"] = programHeader(program)
		plan, err := s.repo.InferTodayDay(ctx, program.ID, tz)
		if err != nil {
			return nil, nil, err
		}
		result["today"] = plan
	}

	active, err := s.repo.ActiveSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	if active != nil {
		result["active_session"] = active
	}

	recent, err := s.repo.ListSessions(ctx, 5, nil)
	if err != nil {
		return nil, nil, err
	}
	result["recent_sessions"] = recent

	week, err := s.repo.Summary(ctx, 7)
	if err != nil {
		return nil, nil, err
	}
	result["week"] = week
	if len(setup) > 0 {
		result["needs_setup"] = setup
	}
	return nil, result, nil
}

func (s *Server) handleManageProfile(ctx context.Context, req *mcp.CallToolRequest, input manageProfileInput) (*mcp.CallToolResult, any, error) {
	switch input.Action {
	case "get":
		p, err := s.repo.GetProfile(ctx)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"profile": p}, nil
	case "update":
		p, err := s.repo.UpdateProfile(ctx, input.Data)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"profile": p, "message": "Profile updated"}, nil
	default:
		return nil, nil, unknownAction(input.Action, "get", "update")
	}
}

func (s *Server) handleManageExercises(ctx context.Context, req *mcp.CallToolRequest, input manageExercisesInput) (*mcp.CallToolResult, any, error) {
	switch input.Action {
	case "search":
		muscle := ""
		if input.MuscleGroup != nil {
			muscle = *input.MuscleGroup
		}
		list, err := s.repo.SearchExercises(ctx, input.Query, muscle)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"exercises": list, "count": len(list)}, nil

	case "get":
		if input.ID == 0 {
			return nil, nil, invalidInput("id", "is required")
		}
		ex, err := s.repo.GetExercise(ctx, input.ID)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"exercise": ex}, nil

	case "resolve":
		query := input.Query
		if query == "" {
			query = input.Name
		}
		res, err := s.repo.ResolveExercise(ctx, storage.ResolveInput{
			Query:        query,
			MuscleGroup:  input.MuscleGroup,
			Equipment:    input.Equipment,
			RepType:      input.RepType,
			ExerciseType: input.ExerciseType,
			Locale:       s.localeFor(ctx),
		})
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"exercise": res}, nil

	case "add":
		ex, err := s.repo.AddExercise(ctx, storage.ExerciseInput{
			Name:         input.Name,
			Names:        input.Names,
			MuscleGroup:  input.MuscleGroup,
			Equipment:    input.Equipment,
			RepType:      input.RepType,
			ExerciseType: input.ExerciseType,
			Aliases:      input.Aliases,
		})
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"exercise": ex, "message": fmt.Sprintf("Added exercise %s (ID: %d)", ex.Name, ex.ID)}, nil

	case "update":
		if input.ID == 0 {
			return nil, nil, invalidInput("id", "is required")
		}
		patch := storage.ExercisePatch{
			Names:       input.Names,
			MuscleGroup: input.MuscleGroup,
			Equipment:   input.Equipment,
		}
		if input.Name != "" {
			patch.Name = &input.Name
		}
		if input.RepType != "" {
			patch.RepType = &input.RepType
		}
		if input.ExerciseType != "" {
			patch.ExerciseType = &input.ExerciseType
		}
		ex, err := s.repo.UpdateExercise(ctx, input.ID, patch)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"exercise": ex}, nil

	case "delete":
		if input.ID == 0 {
			return nil, nil, invalidInput("id", "is required")
		}
		if err := s.repo.DeleteExercise(ctx, input.ID); err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"message": fmt.Sprintf("Deleted exercise %d", input.ID)}, nil

	case "add_alias":
		if input.ID == 0 {
			return nil, nil, invalidInput("id", "is required")
		}
		if err := s.repo.AddExerciseAlias(ctx, input.ID, input.Alias); err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"message": fmt.Sprintf("Added alias %q", input.Alias)}, nil

	default:
		return nil, nil, unknownAction(input.Action, "search", "get", "resolve", "add", "update", "delete", "add_alias")
	}
}

func (s *Server) handleManageProgram(ctx context.Context, req *mcp.CallToolRequest, input manageProgramInput) (*mcp.CallToolResult, any, error) {
	switch input.Action {
	case "create":
		p, err := s.repo.CreateProgram(ctx, storage.ProgramInput{
			Name:        input.Name,
			Description: input.Description,
			Activate:    input.Activate,
			Days:        input.Days,
		})
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"program": p}, nil

	case "get":
		var p *models.Program
		var err error
		if input.ProgramID == 0 {
			p, err = s.repo.ActiveProgram(ctx)
		} else {
			p, err = s.repo.GetProgram(ctx, input.ProgramID, input.Version)
		}
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"program": p}, nil

	case "list":
		list, err := s.repo.ListPrograms(ctx)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"programs": list, "count": len(list)}, nil

	case "history":
		if input.ProgramID == 0 {
			return nil, nil, invalidInput("program_id", "is required")
		}
		versions, err := s.repo.ProgramHistory(ctx, input.ProgramID)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"versions": versions}, nil

	case "activate":
		if input.ProgramID == 0 {
			return nil, nil, invalidInput("program_id", "is required")
		}
		if err := s.repo.ActivateProgram(ctx, input.ProgramID); err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"message": fmt.Sprintf("Program %d is now active", input.ProgramID)}, nil

	case "delete":
		if input.ProgramID == 0 {
			return nil, nil, invalidInput("program_id", "is required")
		}
		if err := s.repo.DeleteProgram(ctx, input.ProgramID); err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"message": fmt.Sprintf("Deleted program %d", input.ProgramID)}, nil

	case "edit":
		if input.ProgramID == 0 {
			return nil, nil, invalidInput("program_id", "is required")
		}
		p, err := s.repo.EditProgram(ctx, input.ProgramID, input.ChangeDescription, input.Ops)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"program": p}, nil

	case "replace":
		if input.ProgramID == 0 {
			return nil, nil, invalidInput("program_id", "is required")
		}
		p, err := s.repo.ReplaceProgram(ctx, input.ProgramID, input.ChangeDescription, input.Days)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"program": p}, nil

	case "clone_version":
		versionID := input.VersionID
		if versionID == 0 {
			if input.ProgramID == 0 {
				return nil, nil, invalidInput("version_id", "version_id or program_id is required")
			}
			p, err := s.repo.GetProgram(ctx, input.ProgramID, input.Version)
			if err != nil {
				return nil, nil, err
			}
			versionID = p.Version.ID
		}
		res, err := s.repo.CloneProgramVersion(ctx, versionID, input.ChangeDescription)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"clone": res}, nil

	default:
		return nil, nil, unknownAction(input.Action, "create", "get", "list", "history", "activate", "delete", "edit", "replace", "clone_version")
	}
}

func (s *Server) handleLogExercise(ctx context.Context, req *mcp.CallToolRequest, input logExerciseInput) (*mcp.CallToolResult, any, error) {
	opts := storage.LogOptions{Locale: s.localeFor(ctx)}
	loggedAt, err := parseTimestamp("logged_at", input.LoggedAt)
	if err != nil {
		return nil, nil, err
	}
	opts.LoggedAt = loggedAt
	logger := logging.FromContext(ctx, s.logger)

	if len(input.Exercises) > 0 {
		if input.Exercise != "" {
			return nil, nil, invalidInput("exercise", "use either exercise or exercises, not both")
		}
		res, err := s.repo.LogWorkout(ctx, input.Exercises, opts)
		if err != nil {
			return nil, nil, err
		}
		prs := 0
		for _, ex := range res.Exercises {
			prs += len(ex.PRs)
		}
		logger.Info("workout logged", "session_id", res.SessionID, "exercises", len(res.Exercises), "new_prs", prs)
		return nil, res, nil
	}

	if strings.TrimSpace(input.Exercise) == "" {
		return nil, nil, invalidInput("exercise", "exercise or exercises is required")
	}
	res, err := s.repo.LogExercise(ctx, input.entry(), opts)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("exercise logged", "session_id", res.SessionID, "exercise", res.Exercise, "sets", len(res.Sets), "new_prs", len(res.PRs))
	return nil, res, nil
}

func (s *Server) handleLogRoutine(ctx context.Context, req *mcp.CallToolRequest, input logRoutineInput) (*mcp.CallToolResult, any, error) {
	tz, err := s.timezoneFromProfile(ctx, input.Timezone)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.repo.LogRoutine(ctx, storage.RoutineInput{
		ProgramID: input.ProgramID,
		DayID:     input.DayID,
		Timezone:  tz,
		Overrides: input.Overrides,
		Skip:      input.Skip,
		Locale:    s.localeFor(ctx),
	})
	if err != nil {
		return nil, nil, err
	}
	logging.FromContext(ctx, s.logger).Info("routine logged", "session_id", res.SessionID, "day", res.DayLabel, "exercises", len(res.Exercises))
	return nil, res, nil
}

func (s *Server) handleManageSession(ctx context.Context, req *mcp.CallToolRequest, input manageSessionInput) (*mcp.CallToolResult, any, error) {
	switch input.Action {
	case "start":
		startedAt, err := parseTimestamp("started_at", input.StartedAt)
		if err != nil {
			return nil, nil, err
		}
		sess, err := s.repo.StartSession(ctx, storage.StartSessionInput{
			ProgramDayID: input.ProgramDayID,
			Notes:        input.Notes,
			Validated:    input.Validated,
			StartedAt:    startedAt,
		})
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"session": sess}, nil

	case "end":
		sess, err := s.repo.EndSession(ctx, input.Notes)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"session": sess, "duration_minutes": durationMinutes(sess)}, nil

	case "active":
		sess, err := s.repo.ActiveSession(ctx)
		if err != nil {
			return nil, nil, err
		}
		if sess == nil {
			return nil, map[string]any{"active": false}, nil
		}
		return nil, map[string]any{"active": true, "session": sess}, nil

	case "get":
		if input.SessionID == 0 {
			return nil, nil, invalidInput("session_id", "is required")
		}
		sess, err := s.repo.GetSession(ctx, input.SessionID)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"session": sess}, nil

	case "list":
		since, err := parseTimestamp("since", input.Since)
		if err != nil {
			return nil, nil, err
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 10
		}
		list, err := s.repo.ListSessions(ctx, limit, since)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"sessions": list, "count": len(list)}, nil

	case "delete":
		if input.SessionID == 0 {
			return nil, nil, invalidInput("session_id", "is required")
		}
		if err := s.repo.DeleteSession(ctx, input.SessionID); err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"message": fmt.Sprintf("Deleted session %d", input.SessionID)}, nil

	case "validate":
		if input.SessionID == 0 {
			return nil, nil, invalidInput("session_id", "is required")
		}
		prs, err := s.repo.ValidateSession(ctx, input.SessionID)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"session_id": input.SessionID, "new_prs": prs}, nil

	default:
		return nil, nil, unknownAction(input.Action, "start", "end", "active", "get", "list", "delete", "validate")
	}
}

func (s *Server) handleEditLog(ctx context.Context, req *mcp.CallToolRequest, input editLogInput) (*mcp.CallToolResult, any, error) {
	switch input.Action {
	case "edit":
		if input.SetID == 0 {
			return nil, nil, invalidInput("set_id", "is required")
		}
		set, prs, err := s.repo.EditSet(ctx, input.SetID, storage.SetPatch{
			Reps:    input.Reps,
			Weight:  input.Weight,
			RPE:     input.RPE,
			SetType: input.SetType,
			Notes:   input.Notes,
		})
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"set": set, "new_prs": prs}, nil

	case "delete":
		if input.SetID == 0 {
			return nil, nil, invalidInput("set_id", "is required")
		}
		if err := s.repo.DeleteSet(ctx, input.SetID); err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"message": fmt.Sprintf("Deleted set %d", input.SetID)}, nil

	case "recompute_prs":
		records, err := s.repo.RecomputePRs(ctx, input.Exercise)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"personal_records": records}, nil

	default:
		return nil, nil, unknownAction(input.Action, "edit", "delete", "recompute_prs")
	}
}

func (s *Server) handleGetTodayPlan(ctx context.Context, req *mcp.CallToolRequest, input getTodayPlanInput) (*mcp.CallToolResult, any, error) {
	tz, err := s.timezoneFromProfile(ctx, input.Timezone)
	if err != nil {
		return nil, nil, err
	}
	plan, err := s.repo.InferTodayDay(ctx, input.ProgramID, tz)
	if err != nil {
		return nil, nil, err
	}
	result := map[string]any{"plan": plan}
	active, err := s.repo.ActiveSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	if active != nil {
		result["active_session_id"] = active.ID
	}
	return nil, result, nil
}

func (s *Server) handleGetStats(ctx context.Context, req *mcp.CallToolRequest, input getStatsInput) (*mcp.CallToolResult, any, error) {
	if input.Exercise == "" {
		summary, err := s.repo.Summary(ctx, input.PeriodDays)
		if err != nil {
			return nil, nil, err
		}
		records, err := s.repo.ListPRs(ctx, "")
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"summary": summary, "personal_records": records}, nil
	}

	st, err := s.repo.ExerciseStats(ctx, input.Exercise, input.PeriodDays)
	if err != nil {
		return nil, nil, err
	}
	if input.RecordType != "" {
		st.History, err = s.repo.PRHistory(ctx, input.Exercise, input.RecordType)
		if err != nil {
			return nil, nil, err
		}
	}
	return nil, st, nil
}

func (s *Server) handleManageMeasurements(ctx context.Context, req *mcp.CallToolRequest, input manageMeasurementsInput) (*mcp.CallToolResult, any, error) {
	switch input.Action {
	case "log":
		measuredAt, err := parseTimestamp("measured_at", input.MeasuredAt)
		if err != nil {
			return nil, nil, err
		}
		m := &models.BodyMeasurement{
			MeasurementType: models.MeasurementType(input.Type),
			Value:           input.Value,
			Unit:            input.Unit,
			Notes:           input.Notes,
		}
		if measuredAt != nil {
			m.MeasuredAt = *measuredAt
		}
		if err := s.repo.LogMeasurement(ctx, m); err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{
			"measurement": m,
			"message":     fmt.Sprintf("Logged %s: %.2f %s (ID: %d)", m.MeasurementType, m.Value, m.Unit, m.ID),
		}, nil

	case "list":
		limit := input.Limit
		if limit <= 0 {
			limit = 20
		}
		var mt *models.MeasurementType
		if input.Type != "" {
			t := models.MeasurementType(input.Type)
			mt = &t
		}
		list, err := s.repo.ListMeasurements(ctx, mt, limit)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"measurements": list, "count": len(list)}, nil

	case "latest":
		types := input.Types
		if input.Type != "" {
			types = append(types, input.Type)
		}
		if len(types) == 0 {
			for _, t := range models.AllMeasurementTypes {
				types = append(types, string(t))
			}
		}
		latest := make(map[string]*models.BodyMeasurement)
		for _, t := range types {
			m, err := s.repo.LatestMeasurement(ctx, models.MeasurementType(t))
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, nil, err
			}
			latest[t] = m
		}
		return nil, map[string]any{"latest": latest}, nil

	case "delete":
		if input.ID == 0 {
			return nil, nil, invalidInput("id", "is required")
		}
		if err := s.repo.DeleteMeasurement(ctx, input.ID); err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"message": fmt.Sprintf("Deleted measurement %d", input.ID)}, nil

	default:
		return nil, nil, unknownAction(input.Action, "log", "list", "latest", "delete")
	}
}

// Helpers

func unknownAction(action string, valid ...string) error {
	return invalidInput("action", fmt.Sprintf("unknown action %q, expected one of %s", action, strings.Join(valid, ", ")))
}

// parseTimestamp accepts RFC3339, "2006-01-02 15:04" or a bare date. Empty
// input returns nil.
func parseTimestamp(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, invalidInput(field, fmt.Sprintf("invalid timestamp %q", value))
}

// timezoneFor picks the explicit timezone, then the profile's, then the
// server default.
func (s *Server) timezoneFor(profile *models.UserProfile, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if profile != nil && profile.Timezone != nil && *profile.Timezone != "" {
		return *profile.Timezone
	}
	return s.timezone
}

func (s *Server) timezoneFromProfile(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	profile, err := s.repo.GetProfile(ctx)
	if err != nil {
		return "", err
	}
	return s.timezoneFor(profile, ""), nil
}

func (s *Server) localeFor(ctx context.Context) string {
	profile, err := s.repo.GetProfile(ctx)
	if err == nil && profile.Locale != nil && *profile.Locale != "" {
		return *profile.Locale
	}
	return s.locale
}

func programHeader(p *models.Program) map[string]any {
	h := map[string]any{"id": p.ID, "name": p.Name}
	if p.Version != nil {
		h["version"] = p.Version.VersionNumber
		labels := make([]string, len(p.Version.Days))
		for i, d := range p.Version.Days {
			labels[i] = d.Label
		}
		h["days"] = labels
	}
	return h
}

func durationMinutes(s *storage.SessionSummary) int {
	if s.EndedAt == nil {
		return 0
	}
	return int(s.EndedAt.Sub(s.StartedAt).Minutes())
}
