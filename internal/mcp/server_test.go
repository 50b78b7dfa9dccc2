// ABOUTME: Tests for MCP server, tools, and resources.
// ABOUTME: Handlers are called directly; envelopes and resources go through an in-memory client.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/logging"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/models"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/storage"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/userctx"
)

// testNow is a Monday.
var testNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

type fakeRecorder struct {
	mu    sync.Mutex
	calls map[string]int
}

func (r *fakeRecorder) ToolCall(tool, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[tool+"/"+outcome]++
}

func (r *fakeRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[key]
}

// setupTestServer creates a server over a seeded temp database acting as user 1.
func setupTestServer(t *testing.T) (*Server, *fakeRecorder) {
	t.Helper()

	db, err := storage.Open(storage.Options{
		Driver: storage.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "gym.db"),
		Now:    func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.SeedGlobalExercises(userCtx(), storage.DefaultCatalog); err != nil {
		t.Fatalf("SeedGlobalExercises failed: %v", err)
	}

	rec := &fakeRecorder{calls: map[string]int{}}
	server, err := NewServer(db, Options{
		UserID:   1,
		Timezone: "UTC",
		Locale:   "en",
		Logger:   logging.Discard(),
		Recorder: rec,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return server, rec
}

func userCtx() context.Context {
	return userctx.WithUserID(context.Background(), 1)
}

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

func pushPullProgram() manageProgramInput {
	return manageProgramInput{
		Action: "create",
		Name:   "PPL",
		Days: []storage.DayInput{
			{
				Label:    "Push",
				Weekdays: []int{1, 4},
				Exercises: []storage.DayExerciseInput{
					{Exercise: "Bench Press", TargetSets: intp(3), TargetReps: intp(8), TargetWeight: f64(80)},
					{Exercise: "Overhead Press", TargetSets: intp(3), TargetReps: intp(10), TargetWeight: f64(40)},
				},
			},
			{
				Label:    "Pull",
				Weekdays: []int{2, 5},
				Exercises: []storage.DayExerciseInput{
					{Exercise: "Deadlift", TargetSets: intp(1), TargetReps: intp(5), TargetWeight: f64(140)},
				},
			},
		},
	}
}

func connectClient(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	t1, t2 := mcp.NewInMemoryTransports()
	ss, err := s.mcpServer.Connect(ctx, t1, nil)
	if err != nil {
		cancel()
		t.Fatalf("server connect: %v", err)
	}
	cs, err := client.Connect(ctx, t2, nil)
	if err != nil {
		_ = ss.Close()
		cancel()
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Close()
		cancel()
	})
	return cs
}

func errorEnvelope(t *testing.T, res *mcp.CallToolResult) toolErrorEnvelope {
	t.Helper()
	if res == nil || !res.IsError {
		t.Fatalf("expected an error result, got %+v", res)
	}
	if len(res.Content) == 0 {
		t.Fatal("expected error content")
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	var env toolErrorEnvelope
	if err := json.Unmarshal([]byte(text.Text), &env); err != nil {
		t.Fatalf("expected a JSON envelope, got %q: %v", text.Text, err)
	}
	return env
}

func TestNewServer(t *testing.T) {
	server, _ := setupTestServer(t)
	if server.mcpServer == nil {
		t.Error("Expected non-nil mcpServer")
	}

	if _, err := NewServer(nil, Options{UserID: 1}); err == nil {
		t.Error("Expected error for nil repository")
	}
	if _, err := NewServer(server.repo, Options{}); err == nil {
		t.Error("Expected error for missing user id")
	}
}

func TestHandleLogExercise(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := userCtx()

	tests := []struct {
		name      string
		input     logExerciseInput
		wantErr   bool
		wantSets  int
		errSubstr string
	}{
		{
			name:     "single exercise",
			input:    logExerciseInput{Exercise: "bench", Sets: 3, Reps: float64(8), Weight: f64(80)},
			wantSets: 3,
		},
		{
			name:     "per-set reps from json",
			input:    logExerciseInput{Exercise: "ohp", Reps: []any{float64(10), float64(8)}, Weight: f64(40)},
			wantSets: 2,
		},
		{
			name:     "backdated",
			input:    logExerciseInput{Exercise: "Deadlift", Reps: float64(5), Weight: f64(140), LoggedAt: "2024-01-15 09:30"},
			wantSets: 1,
		},
		{
			name:      "missing exercise",
			input:     logExerciseInput{Reps: float64(5)},
			wantErr:   true,
			errSubstr: "exercise or exercises is required",
		},
		{
			name: "both forms",
			input: logExerciseInput{
				Exercise:  "bench",
				Reps:      float64(5),
				Exercises: []storage.LogEntry{{Exercise: "squat", Reps: float64(5)}},
			},
			wantErr:   true,
			errSubstr: "not both",
		},
		{
			name:      "bad timestamp",
			input:     logExerciseInput{Exercise: "bench", Reps: float64(5), LoggedAt: "yesterday"},
			wantErr:   true,
			errSubstr: "invalid timestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := server.handleLogExercise(ctx, &mcp.CallToolRequest{}, tt.input)
			if tt.wantErr {
				if !errors.Is(err, storage.ErrValidation) {
					t.Fatalf("Expected validation error, got %v", err)
				}
				if !strings.Contains(err.Error(), tt.errSubstr) {
					t.Errorf("Error %q should contain %q", err.Error(), tt.errSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			res, ok := out.(*storage.LogResult)
			if !ok {
				t.Fatalf("Expected *storage.LogResult, got %T", out)
			}
			if len(res.Sets) != tt.wantSets {
				t.Errorf("Sets = %d, want %d", len(res.Sets), tt.wantSets)
			}
		})
	}
}

func TestHandleLogExerciseBulk(t *testing.T) {
	server, _ := setupTestServer(t)

	_, out, err := server.handleLogExercise(userCtx(), &mcp.CallToolRequest{}, logExerciseInput{
		Exercises: []storage.LogEntry{
			{Exercise: "Bench Press", Sets: 3, Reps: float64(8), Weight: f64(80)},
			{Exercise: "Back Squat", Sets: 2, Reps: float64(5), Weight: f64(100)},
		},
	})
	if err != nil {
		t.Fatalf("handleLogExercise failed: %v", err)
	}
	res := out.(*storage.WorkoutResult)
	if !res.SessionCreated || len(res.Exercises) != 2 {
		t.Errorf("Unexpected workout result: %+v", res)
	}
	if len(res.Exercises[0].PRs) != 3 {
		t.Errorf("Expected 3 first-time records for bench, got %d", len(res.Exercises[0].PRs))
	}
}

func TestProgramTodayAndRoutine(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := userCtx()

	if _, _, err := server.handleManageProgram(ctx, &mcp.CallToolRequest{}, pushPullProgram()); err != nil {
		t.Fatalf("create program failed: %v", err)
	}

	_, out, err := server.handleGetTodayPlan(ctx, &mcp.CallToolRequest{}, getTodayPlanInput{})
	if err != nil {
		t.Fatalf("handleGetTodayPlan failed: %v", err)
	}
	plan := out.(map[string]any)["plan"].(*storage.TodayPlan)
	if plan.Day == nil || plan.Day.Label != "Push" {
		t.Fatalf("Expected Push on Monday, got %+v", plan)
	}

	_, out, err = server.handleLogRoutine(ctx, &mcp.CallToolRequest{}, logRoutineInput{
		Overrides: []storage.RoutineOverride{{Exercise: "Bench Press", Weight: f64(85)}},
	})
	if err != nil {
		t.Fatalf("handleLogRoutine failed: %v", err)
	}
	routine := out.(*storage.RoutineResult)
	if routine.DayLabel != "Push" || len(routine.Exercises) != 2 {
		t.Fatalf("Unexpected routine result: %+v", routine)
	}
	if w := routine.Exercises[0].Sets[0].Weight; w == nil || *w != 85 {
		t.Errorf("Expected override weight 85, got %v", w)
	}

	_, out, err = server.handleManageProgram(ctx, &mcp.CallToolRequest{}, manageProgramInput{
		Action:    "edit",
		ProgramID: plan.ProgramID,
		Ops: []storage.ProgramOp{
			{Op: storage.OpRemoveExercise, ExerciseID: &plan.Day.Exercises[1].ID},
		},
	})
	if err != nil {
		t.Fatalf("edit program failed: %v", err)
	}
	edited := out.(map[string]any)["program"].(*models.Program)
	if edited.Version.VersionNumber != 2 || len(edited.Version.Days[0].Exercises) != 1 {
		t.Errorf("Unexpected edited program: %+v", edited.Version)
	}
}

func TestGetContext(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := userCtx()

	_, out, err := server.handleGetContext(ctx, &mcp.CallToolRequest{}, getContextInput{})
	if err != nil {
		t.Fatalf("handleGetContext failed: %v", err)
	}
	result := out.(map[string]any)
	setup, _ := result["needs_setup"].([]string)
	if len(setup) != 2 {
		t.Errorf("Expected profile and program setup, got %v", setup)
	}

	if _, _, err := server.handleManageProfile(ctx, &mcp.CallToolRequest{}, manageProfileInput{
		Action: "update",
		Data:   map[string]any{"name": "Fran", "timezone": "Asia/Tokyo"},
	}); err != nil {
		t.Fatalf("update profile failed: %v", err)
	}
	if _, _, err := server.handleManageProgram(ctx, &mcp.CallToolRequest{}, pushPullProgram()); err != nil {
		t.Fatalf("create program failed: %v", err)
	}

	_, out, err = server.handleGetContext(ctx, &mcp.CallToolRequest{}, getContextInput{})
	if err != nil {
		t.Fatalf("handleGetContext failed: %v", err)
	}
	result = out.(map[string]any)
	if _, ok := result["needs_setup"]; ok {
		t.Errorf("Expected no setup hints, got %v", result["needs_setup"])
	}
	if result["timezone"] != "Asia/Tokyo" {
		t.Errorf("Expected the profile timezone, got %v", result["timezone"])
	}
	if plan := result["today"].(*storage.TodayPlan); plan.Day == nil || plan.Day.Label != "Push" {
		t.Errorf("Expected Push today, got %+v", plan)
	}
}

func TestManageSessionAndEditLog(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := userCtx()

	_, out, err := server.handleManageSession(ctx, &mcp.CallToolRequest{}, manageSessionInput{Action: "active"})
	if err != nil {
		t.Fatalf("active failed: %v", err)
	}
	if out.(map[string]any)["active"] != false {
		t.Error("Expected no active session")
	}

	_, out, err = server.handleLogExercise(ctx, &mcp.CallToolRequest{}, logExerciseInput{Exercise: "bench", Reps: float64(8), Weight: f64(80)})
	if err != nil {
		t.Fatalf("log failed: %v", err)
	}
	logged := out.(*storage.LogResult)

	_, out, err = server.handleEditLog(ctx, &mcp.CallToolRequest{}, editLogInput{Action: "edit", SetID: logged.Sets[0].ID, Weight: f64(90)})
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	prs := out.(map[string]any)["new_prs"].([]storage.PRCheck)
	if len(prs) == 0 {
		t.Error("Expected the edit to raise records")
	}

	_, out, err = server.handleManageSession(ctx, &mcp.CallToolRequest{}, manageSessionInput{Action: "end", Notes: strp("done")})
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	ended := out.(map[string]any)["session"].(*storage.SessionSummary)
	if ended.IsActive() {
		t.Error("Expected the session to be ended")
	}

	if _, _, err := server.handleEditLog(ctx, &mcp.CallToolRequest{}, editLogInput{Action: "delete", SetID: 999999}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	if _, _, err := server.handleManageSession(ctx, &mcp.CallToolRequest{}, manageSessionInput{Action: "pause"}); !errors.Is(err, storage.ErrValidation) {
		t.Errorf("Expected validation error for unknown action, got %v", err)
	}
}

func TestHandleManageMeasurements(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := userCtx()

	_, out, err := server.handleManageMeasurements(ctx, &mcp.CallToolRequest{}, manageMeasurementsInput{Action: "log", Type: "weight", Value: 82.5})
	if err != nil {
		t.Fatalf("log failed: %v", err)
	}
	m := out.(map[string]any)["measurement"].(*models.BodyMeasurement)
	if m.Unit != "kg" || m.ID == 0 {
		t.Errorf("Unexpected measurement: %+v", m)
	}

	_, out, err = server.handleManageMeasurements(ctx, &mcp.CallToolRequest{}, manageMeasurementsInput{Action: "latest"})
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	latest := out.(map[string]any)["latest"].(map[string]*models.BodyMeasurement)
	if len(latest) != 1 || latest["weight"].Value != 82.5 {
		t.Errorf("Unexpected latest: %v", latest)
	}

	if _, _, err := server.handleManageMeasurements(ctx, &mcp.CallToolRequest{}, manageMeasurementsInput{Action: "delete", ID: m.ID}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, _, err := server.handleManageMeasurements(ctx, &mcp.CallToolRequest{}, manageMeasurementsInput{Action: "log", Type: "wingspan", Value: 1}); !errors.Is(err, storage.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestHandleGetStats(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := userCtx()

	for _, w := range []float64{80, 90, 85} {
		if _, _, err := server.handleLogExercise(ctx, &mcp.CallToolRequest{}, logExerciseInput{Exercise: "bench", Reps: float64(5), Weight: f64(w)}); err != nil {
			t.Fatalf("log failed: %v", err)
		}
	}

	_, out, err := server.handleGetStats(ctx, &mcp.CallToolRequest{}, getStatsInput{Exercise: "bench", RecordType: "max_weight"})
	if err != nil {
		t.Fatalf("handleGetStats failed: %v", err)
	}
	st := out.(*storage.ExerciseStats)
	if len(st.History) != 2 {
		t.Errorf("Expected 2 max_weight history entries, got %d", len(st.History))
	}

	_, out, err = server.handleGetStats(ctx, &mcp.CallToolRequest{}, getStatsInput{})
	if err != nil {
		t.Fatalf("handleGetStats failed: %v", err)
	}
	summary := out.(map[string]any)["summary"].(*storage.Summary)
	if summary.Sets != 3 || summary.Sessions != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
}

func TestToolErrorEnvelopeOverClient(t *testing.T) {
	server, rec := setupTestServer(t)
	cs := connectClient(t, server)
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "manage_session",
		Arguments: map[string]any{"action": "start"},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if res.IsError {
		t.Fatalf("start failed: %+v", res.Content)
	}

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "manage_session",
		Arguments: map[string]any{"action": "start"},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	env := errorEnvelope(t, res)
	if env.Code != codeConflict || env.SessionID == 0 || env.RequestID == "" {
		t.Errorf("Unexpected envelope: %+v", env)
	}

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "manage_exercises",
		Arguments: map[string]any{"action": "get", "id": 424242},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if env := errorEnvelope(t, res); env.Code != codeNotFound {
		t.Errorf("Expected not_found, got %+v", env)
	}

	if n := rec.count("manage_session/ok"); n != 1 {
		t.Errorf("Expected 1 ok call, got %d", n)
	}
	if n := rec.count("manage_session/conflict"); n != 1 {
		t.Errorf("Expected 1 conflict call, got %d", n)
	}
}

func TestResources(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := userCtx()
	if _, _, err := server.handleLogExercise(ctx, &mcp.CallToolRequest{}, logExerciseInput{Exercise: "bench", Reps: float64(8), Weight: f64(80)}); err != nil {
		t.Fatalf("log failed: %v", err)
	}
	cs := connectClient(t, server)

	tests := []struct {
		uri  string
		want string
	}{
		{uriToday, "No active program."},
		{uriActiveSession, `"active": true`},
		{uriPRs, `"max_weight": 80`},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			res, err := cs.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: tt.uri})
			if err != nil {
				t.Fatalf("ReadResource failed: %v", err)
			}
			if len(res.Contents) != 1 {
				t.Fatalf("Expected 1 content, got %d", len(res.Contents))
			}
			if !strings.Contains(res.Contents[0].Text, tt.want) {
				t.Errorf("Expected %q in:\n%s", tt.want, res.Contents[0].Text)
			}
		})
	}
}

func TestClassifyToolError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"validation", invalidInput("reps", "is required"), codeValidation},
		{"not found", fmt.Errorf("wrapped: %w", &storage.NotFoundError{Kind: "set", ID: 1}), codeNotFound},
		{"conflict", &storage.ConflictError{Message: "open", SessionID: 7}, codeConflict},
		{"timeout", fmt.Errorf("commit: %w", context.DeadlineExceeded), codeTimeout},
		{"storage", errors.New("disk I/O error"), codeStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := classifyToolError(tt.err)
			if env.Code != tt.code {
				t.Errorf("Code = %s, want %s", env.Code, tt.code)
			}
		})
	}

	env := classifyToolError(invalidInput("reps", "is required"))
	if env.Field != "reps" || env.Error != "is required" {
		t.Errorf("Unexpected validation envelope: %+v", env)
	}
}

func strp(s string) *string { return &s }
