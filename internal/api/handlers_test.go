package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/frontdesk/internal/storage"
	"github.com/kalambet/frontdesk/internal/workflow"
)

// --- mocks ---

type mockWorkflow struct {
	queryFn    func(ctx context.Context, userID, text string) (workflow.QueryResult, error)
	respondFn  func(ctx context.Context, requestID int64, rawAnswer string) (string, error)
	updatesFn  func(userID string) workflow.QueryResult
	pending    []storage.HelpRequest
	pendingErr error
	deleteFn   func(requestID int64) error
}

func (m *mockWorkflow) HandleQuery(ctx context.Context, userID, text string) (workflow.QueryResult, error) {
	return m.queryFn(ctx, userID, text)
}

func (m *mockWorkflow) HandleSupervisorResponse(ctx context.Context, requestID int64, rawAnswer string) (string, error) {
	return m.respondFn(ctx, requestID, rawAnswer)
}

func (m *mockWorkflow) CheckUpdates(userID string) workflow.QueryResult {
	return m.updatesFn(userID)
}

func (m *mockWorkflow) ListPending() ([]storage.HelpRequest, error) {
	return m.pending, m.pendingErr
}

func (m *mockWorkflow) DeletePending(requestID int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(requestID)
	}
	return nil
}

type mockPolisher struct {
	out string
	err error
}

func (m *mockPolisher) Polish(_ context.Context, _ string) (string, error) {
	return m.out, m.err
}

type mockKnowledge struct {
	texts []string
}

func (m *mockKnowledge) All() []string { return m.texts }

// --- helpers ---

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(deps))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func errType(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	decodeBody(t, resp, &body)
	return body.Error.Type
}

// --- tests ---

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Deps{})

	resp := getJSON(t, srv.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]string
	decodeBody(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestQuery_Answered(t *testing.T) {
	flow := &mockWorkflow{queryFn: func(_ context.Context, userID, text string) (workflow.QueryResult, error) {
		if userID != "user-1" || text != "How much is a haircut?" {
			t.Errorf("HandleQuery(%q, %q)", userID, text)
		}
		return workflow.QueryResult{Status: workflow.StatusAnswered, Answer: "$20"}, nil
	}}
	srv := newTestServer(t, Deps{Workflow: flow})

	resp := postJSON(t, srv.URL+"/query", `{"user_id":"user-1","message":"How much is a haircut?"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body queryResponse
	decodeBody(t, resp, &body)
	if body.Status != workflow.StatusAnswered {
		t.Errorf("status = %q, want %q", body.Status, workflow.StatusAnswered)
	}
	if body.Answer != "$20" {
		t.Errorf("answer = %q, want %q", body.Answer, "$20")
	}
}

func TestQuery_Validation(t *testing.T) {
	srv := newTestServer(t, Deps{Workflow: &mockWorkflow{}})

	tests := []struct {
		name string
		body string
	}{
		{"missing user_id", `{"message":"hi"}`},
		{"missing message", `{"user_id":"u"}`},
		{"blank message", `{"user_id":"u","message":"   "}`},
		{"invalid json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/query", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if typ := errType(t, resp); typ != "validation_error" {
				t.Errorf("error type = %q, want %q", typ, "validation_error")
			}
		})
	}
}

func TestSupervisorRespond(t *testing.T) {
	flow := &mockWorkflow{respondFn: func(_ context.Context, requestID int64, rawAnswer string) (string, error) {
		if requestID != 3 || rawAnswer != "Yes we do" {
			t.Errorf("HandleSupervisorResponse(%d, %q)", requestID, rawAnswer)
		}
		return "Yes, we do!", nil
	}}
	srv := newTestServer(t, Deps{Workflow: flow})

	resp := postJSON(t, srv.URL+"/supervisor/respond", `{"request_id":3,"answer":"Yes we do"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]string
	decodeBody(t, resp, &body)
	if body["status"] != "updated" {
		t.Errorf("status = %q, want %q", body["status"], "updated")
	}
	if body["refined_answer"] != "Yes, we do!" {
		t.Errorf("refined_answer = %q", body["refined_answer"])
	}
}

func TestSupervisorRespond_NotFound(t *testing.T) {
	flow := &mockWorkflow{respondFn: func(context.Context, int64, string) (string, error) {
		return "", storage.ErrNotFound
	}}
	srv := newTestServer(t, Deps{Workflow: flow})

	resp := postJSON(t, srv.URL+"/supervisor/respond", `{"request_id":42,"answer":"x"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if typ := errType(t, resp); typ != "not_found" {
		t.Errorf("error type = %q, want %q", typ, "not_found")
	}
}

func TestSupervisorRespond_Validation(t *testing.T) {
	srv := newTestServer(t, Deps{Workflow: &mockWorkflow{}})

	for _, body := range []string{
		`{"answer":"x"}`,
		`{"request_id":0,"answer":"x"}`,
		`{"request_id":1}`,
	} {
		resp := postJSON(t, srv.URL+"/supervisor/respond", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestCheckUpdates(t *testing.T) {
	flow := &mockWorkflow{updatesFn: func(userID string) workflow.QueryResult {
		if userID != "user-1" {
			return workflow.QueryResult{Status: workflow.StatusNoUpdate}
		}
		return workflow.QueryResult{
			Status: workflow.StatusResolvedFromSupervisor,
			Answer: "We open at 9 AM.",
		}
	}}
	srv := newTestServer(t, Deps{Workflow: flow})

	resp := getJSON(t, srv.URL+"/check_updates/user-1")
	var body queryResponse
	decodeBody(t, resp, &body)
	if body.Status != workflow.StatusResolvedFromSupervisor {
		t.Errorf("status = %q", body.Status)
	}
	if body.Answer != "We open at 9 AM." {
		t.Errorf("answer = %q", body.Answer)
	}

	resp = getJSON(t, srv.URL+"/check_updates/user-2")
	decodeBody(t, resp, &body)
	if body.Status != workflow.StatusNoUpdate {
		t.Errorf("status = %q, want %q", body.Status, workflow.StatusNoUpdate)
	}
}

func TestListPending(t *testing.T) {
	flow := &mockWorkflow{pending: []storage.HelpRequest{
		{ID: 1, UserID: "user-1", Question: "q1", Status: storage.StatusPending},
		{ID: 2, UserID: "user-2", Question: "q2", Status: storage.StatusPending},
	}}
	srv := newTestServer(t, Deps{Workflow: flow})

	resp := getJSON(t, srv.URL+"/pending")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]pendingEntry
	decodeBody(t, resp, &body)
	if len(body) != 2 {
		t.Fatalf("got %d entries, want 2", len(body))
	}
	if body["1"].Question != "q1" || body["2"].UserID != "user-2" {
		t.Errorf("body = %v", body)
	}
}

func TestListPending_Empty(t *testing.T) {
	srv := newTestServer(t, Deps{Workflow: &mockWorkflow{}})

	resp := getJSON(t, srv.URL+"/pending")
	var body map[string]pendingEntry
	decodeBody(t, resp, &body)
	if len(body) != 0 {
		t.Errorf("got %d entries, want 0", len(body))
	}
}

func TestDeletePending(t *testing.T) {
	var deleted int64
	flow := &mockWorkflow{deleteFn: func(requestID int64) error {
		deleted = requestID
		return nil
	}}
	srv := newTestServer(t, Deps{Workflow: flow})

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/pending/7", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if deleted != 7 {
		t.Errorf("deleted id = %d, want 7", deleted)
	}

	var body map[string]string
	decodeBody(t, resp, &body)
	if body["status"] != "deleted" {
		t.Errorf("status = %q, want %q", body["status"], "deleted")
	}
}

func TestDeletePending_NotFound(t *testing.T) {
	flow := &mockWorkflow{deleteFn: func(int64) error { return storage.ErrNotFound }}
	srv := newTestServer(t, Deps{Workflow: flow})

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/pending/42", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeletePending_BadID(t *testing.T) {
	srv := newTestServer(t, Deps{Workflow: &mockWorkflow{}})

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/pending/abc", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestKnowledge(t *testing.T) {
	srv := newTestServer(t, Deps{Knowledge: &mockKnowledge{texts: []string{"doc a", "doc b"}}})

	resp := getJSON(t, srv.URL+"/knowledge")
	var body []string
	decodeBody(t, resp, &body)
	if len(body) != 2 || body[0] != "doc a" {
		t.Errorf("body = %v", body)
	}
}

func TestKnowledge_EmptyIsArray(t *testing.T) {
	srv := newTestServer(t, Deps{Knowledge: &mockKnowledge{}})

	resp := getJSON(t, srv.URL+"/knowledge")
	raw := json.RawMessage{}
	decodeBody(t, resp, &raw)
	if strings.TrimSpace(string(raw)) != "[]" {
		t.Errorf("body = %s, want []", raw)
	}
}

func TestRefine(t *testing.T) {
	srv := newTestServer(t, Deps{Polisher: &mockPolisher{out: "Polished!"}})

	resp := postJSON(t, srv.URL+"/refine", `{"prompt":"rough text"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]string
	decodeBody(t, resp, &body)
	if body["refined_answer"] != "Polished!" {
		t.Errorf("refined_answer = %q", body["refined_answer"])
	}
}

func TestRefine_BackendFailure(t *testing.T) {
	srv := newTestServer(t, Deps{Polisher: &mockPolisher{err: errors.New("model offline")}})

	resp := postJSON(t, srv.URL+"/refine", `{"prompt":"rough text"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestRefine_Validation(t *testing.T) {
	srv := newTestServer(t, Deps{Polisher: &mockPolisher{out: "x"}})

	resp := postJSON(t, srv.URL+"/refine", `{"prompt":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
