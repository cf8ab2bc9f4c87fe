package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/http/httptest"
	"testing"

	"testflow_backend/catalog"
	"testflow_backend/config"
	"testflow_backend/middleware"
	"testflow_backend/models"
	"testflow_backend/notify"
	"testflow_backend/report"
	"testflow_backend/session"
	"testflow_backend/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jwtSecret = []byte("routes-test-secret")

type fakeTransport struct {
	sent []notify.Message
	err  error
}

func (f *fakeTransport) Send(_ context.Context, msg notify.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type testServer struct {
	router    *gin.Engine
	store     *store.Memory
	transport *fakeTransport
	token     string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	s := store.NewMemory()
	hash, err := middleware.HashPassword("admin-password")
	require.NoError(t, err)
	admin := s.SeedUser("admin", hash, "admin@example.com")
	_, err = s.UpdateSettings(ctx, models.Settings{ReportEmail: "reports@example.com", RejectionEmail: "qa@example.com"})
	require.NoError(t, err)

	transport := &fakeTransport{}
	dispatcher := notify.NewDispatcher(transport, s,
		notify.RejectionRecipient(config.RecipientFixed, "lead@example.com"),
		notify.ReportRecipient(config.RecipientSettings, ""),
		nil)
	cat := catalog.New(s, nil)
	questionnaire := catalog.NewQuestionnaire(s, nil)
	recorder := session.NewRecorder(s, dispatcher, nil)
	reports := report.NewService(report.NewCompiler(s, report.Options{Packaging: report.PackageZip}, nil), s, dispatcher, nil)

	r := gin.New()
	SetupRoutes(r, Dependencies{
		Store:         s,
		Catalog:       cat,
		Questionnaire: questionnaire,
		Recorder:      recorder,
		Machine:       session.NewMachine(cat, questionnaire, recorder, reports, nil),
		Reports:       reports,
		JWTSecret:     jwtSecret,
	})

	token, err := middleware.NewTokenService(jwtSecret).GenerateToken(admin)
	require.NoError(t, err)
	return &testServer{router: r, store: s, transport: transport, token: token}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (ts *testServer) createInstruction(t *testing.T, title string) models.Instruction {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/instructions", gin.H{"title": title, "content": "steps", "device": "desktop"}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Instruction](t, w)
}

func (ts *testServer) listInstructions(t *testing.T) []models.Instruction {
	t.Helper()
	w := ts.do(t, http.MethodGet, "/instructions", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	return decode[[]models.Instruction](t, w)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/auth/login", gin.H{"username": "admin", "password": "admin-password"}, false)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[models.LoginResponse](t, w)
	assert.Equal(t, "admin", resp.Username)
	claims, err := middleware.ParseToken(resp.Token, jwtSecret)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)

	w = ts.do(t, http.MethodPost, "/auth/login", gin.H{"username": "admin", "password": "nope"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = ts.do(t, http.MethodPost, "/auth/login", gin.H{"username": "ghost", "password": "nope"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = ts.do(t, http.MethodPost, "/auth/login", gin.H{"username": "admin"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	for _, rt := range []struct{ method, path string }{
		{http.MethodPost, "/instructions"},
		{http.MethodPut, "/instructions/1"},
		{http.MethodDelete, "/instructions/1"},
		{http.MethodPost, "/instructions/reorder"},
		{http.MethodPost, "/questionnaire"},
		{http.MethodDelete, "/questionnaire/1"},
		{http.MethodGet, "/auth/settings"},
		{http.MethodPut, "/auth/settings"},
		{http.MethodPost, "/auth/change-credentials"},
		{http.MethodGet, "/report/run/download"},
	} {
		w := ts.do(t, rt.method, rt.path, gin.H{}, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", rt.method, rt.path)
	}
}

func TestInstructionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	i1 := ts.createInstruction(t, "I1")
	i2 := ts.createInstruction(t, "I2")
	i3 := ts.createInstruction(t, "I3")
	assert.Equal(t, []int{1, 2, 3}, []int{i1.OrderIndex, i2.OrderIndex, i3.OrderIndex})

	w := ts.do(t, http.MethodPost, "/instructions", gin.H{"title": "x", "content": "y", "device": "tablet"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPut, fmt.Sprintf("/instructions/%d", i2.ID), gin.H{"title": "I2 edited"}, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[models.Instruction](t, w).OrderIndex)

	w = ts.do(t, http.MethodPut, "/instructions/999", gin.H{"title": "x"}, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(t, http.MethodPut, "/instructions/abc", gin.H{"title": "x"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/instructions/reorder", gin.H{"instructions": []gin.H{{"id": i3.ID}, {"id": i1.ID}, {"id": i2.ID}}}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list := ts.listInstructions(t)
	assert.Equal(t, []int{i3.ID, i1.ID, i2.ID}, []int{list[0].ID, list[1].ID, list[2].ID})

	w = ts.do(t, http.MethodPost, "/instructions/reorder", gin.H{"ids": []int{i1.ID, i2.ID}}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodDelete, fmt.Sprintf("/instructions/%d", i1.ID), nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	list = ts.listInstructions(t)
	require.Len(t, list, 2)
	assert.Equal(t, i3.ID, list[0].ID)
	assert.Equal(t, 1, list[0].OrderIndex)
	assert.Equal(t, i2.ID, list[1].ID)
	assert.Equal(t, 2, list[1].OrderIndex)

	w = ts.do(t, http.MethodDelete, fmt.Sprintf("/instructions/%d", i1.ID), nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitResponse(t *testing.T) {
	ts := newTestServer(t)
	in := ts.createInstruction(t, "Open menu")
	path := fmt.Sprintf("/instructions/%d/response", in.ID)

	w := ts.do(t, http.MethodPost, path, gin.H{"approved": false, "remark": " ", "test_number": 1, "test_run_id": "run-1", "tester_name": "Alice"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, path, gin.H{"approved": false, "remark": "menu hidden", "test_number": 1, "test_run_id": "run-1", "tester_name": "Alice"}, false)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode[map[string]any](t, w)
	assert.Equal(t, true, body["alert_sent"])
	require.Len(t, ts.transport.sent, 1)
	assert.Equal(t, "lead@example.com", ts.transport.sent[0].To)

	w = ts.do(t, http.MethodPost, path, gin.H{"approved": false, "remark": "menu hidden", "test_number": 1, "test_run_id": "run-1", "tester_name": "Alice"}, false)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body = decode[map[string]any](t, w)
	assert.Equal(t, true, body["replayed"])
	assert.Equal(t, false, body["alert_sent"])
	assert.Len(t, ts.transport.sent, 1)
	assert.Len(t, ts.store.Responses("run-1"), 1)

	other := ts.createInstruction(t, "Close menu")
	w = ts.do(t, http.MethodPost, fmt.Sprintf("/instructions/%d/response", other.ID), gin.H{"approved": true, "test_number": 1, "test_run_id": "run-1", "tester_name": "Alice"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPost, path, gin.H{"approved": true, "test_number": 3, "test_run_id": "run-1", "tester_name": "Alice"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/instructions/999/response", gin.H{"approved": true, "test_number": 1, "test_run_id": "run-2", "tester_name": "Alice"}, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitResponseWithMailOutage(t *testing.T) {
	ts := newTestServer(t)
	in := ts.createInstruction(t, "Open menu")
	ts.transport.err = errors.New("dial tcp: connection refused")

	w := ts.do(t, http.MethodPost, fmt.Sprintf("/instructions/%d/response", in.ID),
		gin.H{"approved": false, "remark": "menu hidden", "test_number": 1, "test_run_id": "run-1", "tester_name": "Alice"}, false)
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, false, body["alert_sent"])
	assert.Equal(t, "mail dispatch failed", body["alert_error"])
	assert.Len(t, ts.store.Responses("run-1"), 1)
}

func TestQuestionnaireRoutes(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/questionnaire", gin.H{"questions": []gin.H{{"title": "Impression"}, {"title": "Notes", "required": false}}}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/questionnaires", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	items := decode[[]models.QuestionnaireItem](t, w)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].OrderIndex)
	assert.True(t, items[0].Required)
	assert.False(t, items[1].Required)

	w = ts.do(t, http.MethodPost, "/questionnaire/submit", gin.H{
		"test_run_id": "run-1", "tester_name": "Alice",
		"responses": []gin.H{{"question_id": items[1].ID, "answer": "n/a"}},
	}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, ts.store.Answers("run-1"))

	w = ts.do(t, http.MethodPost, "/questionnaire/submit", gin.H{
		"test_run_id": "run-1", "tester_name": "Alice",
		"responses": []gin.H{{"question_id": items[0].ID, "answer": "good"}},
	}, false)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, ts.store.Answers("run-1"), 1)

	w = ts.do(t, http.MethodDelete, fmt.Sprintf("/questionnaire/%d", items[0].ID), nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodDelete, fmt.Sprintf("/questionnaire/%d", items[0].ID), nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateReport(t *testing.T) {
	ts := newTestServer(t)
	in := ts.createInstruction(t, "Open menu")
	req := gin.H{"test_run_id": "run-1", "tester_name": "Alice", "start_time": "2024-03-05T09:00:00Z", "end_time": "2024-03-05T09:30:00Z"}

	w := ts.do(t, http.MethodPost, "/report/generate", req, false)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(t, http.MethodPost, fmt.Sprintf("/instructions/%d/response", in.ID),
		gin.H{"approved": true, "test_number": 1, "test_run_id": "run-1", "tester_name": "Alice"}, false)
	require.Equal(t, http.StatusCreated, w.Code)

	ts.transport.err = errors.New("535 authentication failed")
	w = ts.do(t, http.MethodPost, "/report/generate", req, false)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	ts.transport.err = nil
	w = ts.do(t, http.MethodPost, "/report/generate", req, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Alice_test_report.zip", decode[map[string]any](t, w)["filename"])
	require.Len(t, ts.transport.sent, 1)
	assert.Equal(t, "reports@example.com", ts.transport.sent[0].To)

	w = ts.do(t, http.MethodGet, "/report/run-1", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, ts.transport.sent, 2)

	w = ts.do(t, http.MethodGet, "/report/unknown", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/report/run-1/download", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Alice_test_report.zip")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
}

func TestDownloadHeaderWithQuotedTesterName(t *testing.T) {
	ts := newTestServer(t)
	in := ts.createInstruction(t, "Open menu")
	w := ts.do(t, http.MethodPost, fmt.Sprintf("/instructions/%d/response", in.ID),
		gin.H{"approved": true, "test_number": 1, "test_run_id": "run-q", "tester_name": `Bob "QA"`}, false)
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodGet, "/report/run-q/download", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	disposition, params, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, "Bob _QA__test_report.zip", params["filename"])
}

type sessionBody struct {
	Session   session.Session `json:"session"`
	AlertSent bool            `json:"alert_sent"`
	Error     string          `json:"error"`
}

func TestSessionFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.createInstruction(t, "I1")
	ts.createInstruction(t, "I2")
	w := ts.do(t, http.MethodPost, "/questionnaire", gin.H{"questions": []gin.H{{"title": "Impression"}}}, true)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/session/start", gin.H{"tester_name": "Alice"}, false)
	require.Equal(t, http.StatusCreated, w.Code)
	s := decode[sessionBody](t, w).Session
	assert.Equal(t, session.StateInProgress, s.State)

	w = ts.do(t, http.MethodPost, "/session/respond", gin.H{"session": s, "approved": true}, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	s = decode[sessionBody](t, w).Session
	assert.Equal(t, 1, s.CurrentIndex)

	w = ts.do(t, http.MethodPost, "/session/respond", gin.H{"session": s, "approved": false}, false)
	require.Equal(t, http.StatusBadRequest, w.Code)
	failed := decode[sessionBody](t, w)
	assert.Equal(t, s.CurrentIndex, failed.Session.CurrentIndex)
	assert.NotEmpty(t, failed.Error)

	w = ts.do(t, http.MethodPost, "/session/respond", gin.H{"session": s, "approved": false, "remark": "layout broken"}, false)
	require.Equal(t, http.StatusOK, w.Code)
	step := decode[sessionBody](t, w)
	assert.True(t, step.AlertSent)
	s = step.Session
	assert.Equal(t, session.StateAwaitingQuestionnaire, s.State)
	require.Len(t, s.Questions, 1)

	w = ts.do(t, http.MethodPost, "/session/questionnaire", gin.H{"session": s, "answers": gin.H{}}, false)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, session.StateAwaitingQuestionnaire, decode[sessionBody](t, w).Session.State)

	answers := map[int]string{s.Questions[0].ID: "mostly fine"}
	w = ts.do(t, http.MethodPost, "/session/questionnaire", gin.H{"session": s, "answers": answers}, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, session.StateCompleted, decode[sessionBody](t, w).Session.State)

	stored := ts.store.Responses(s.RunID)
	require.Len(t, stored, 2)
	assert.Equal(t, 1, stored[0].TestNumber)
	assert.Equal(t, 2, stored[1].TestNumber)
	require.Len(t, ts.transport.sent, 2)
	assert.Equal(t, "Test Report: Alice", ts.transport.sent[1].Subject)
}

func TestSettingsRoutes(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/auth/settings", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reports@example.com", decode[models.Settings](t, w).ReportEmail)

	w = ts.do(t, http.MethodPut, "/auth/settings", gin.H{"report_email": "not-an-email", "rejection_email": "qa@example.com"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPut, "/auth/settings", gin.H{"report_email": "new@example.com", "rejection_email": "qa@example.com"}, true)
	require.Equal(t, http.StatusOK, w.Code)
	got, err := ts.store.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.ReportEmail)
}

func TestChangeCredentials(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/auth/change-credentials", gin.H{"current_password": "wrong", "new_username": "root"}, true)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/auth/change-credentials", gin.H{"current_password": "admin-password"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/auth/change-credentials", gin.H{"current_password": "admin-password", "new_password": "short"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/auth/change-credentials", gin.H{
		"current_password": "admin-password",
		"new_username":     "root",
		"new_password":     "a-much-longer-password",
	}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/auth/login", gin.H{"username": "root", "password": "a-much-longer-password"}, false)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodPost, "/auth/login", gin.H{"username": "admin", "password": "admin-password"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
