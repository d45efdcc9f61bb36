package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/tecnoaigent/backend/internal/model/analytics"
	chatModel "github.com/zhouzirui/tecnoaigent/backend/internal/model/chat"
	"github.com/zhouzirui/tecnoaigent/backend/internal/service/agent"
	authService "github.com/zhouzirui/tecnoaigent/backend/internal/service/auth"
	chatService "github.com/zhouzirui/tecnoaigent/backend/internal/service/chat"
)

type stubAgent struct {
	reply         agent.Reply
	askErr        error
	transcript    string
	transcribeErr error
}

func (s *stubAgent) Ask(context.Context, agent.Query) (agent.Reply, error) {
	return s.reply, s.askErr
}

func (s *stubAgent) Transcribe(_ context.Context, req *agent.TranscriptionRequest) (*agent.TranscriptionResponse, error) {
	if s.transcribeErr != nil {
		return nil, s.transcribeErr
	}
	return &agent.TranscriptionResponse{SessionID: req.SessionID, Text: s.transcript}, nil
}

func setupRouter(t *testing.T, stub *stubAgent, email string, opts ...chatService.Option) (*chi.Mux, *chatService.Service) {
	t.Helper()
	store, err := analytics.NewMemoryStore(analytics.Seed())
	if err != nil {
		t.Fatalf("NewMemoryStore err: %v", err)
	}
	chatSvc := chatService.NewService(stub, store, opts...)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if email != "" {
				req = req.WithContext(authService.WithIdentity(req.Context(), authService.Identity{Email: email}))
			}
			next.ServeHTTP(w, req)
		})
	})
	New(chatSvc, 1<<20).RegisterRoutes(r)
	return r, chatSvc
}

func openSession(t *testing.T, r http.Handler) chatModel.Snapshot {
	t.Helper()
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/chat/session", nil))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	var snap chatModel.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	return snap
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestOpenSessionRequiresIdentity(t *testing.T) {
	r, _ := setupRouter(t, &stubAgent{}, "")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/chat/session", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestSessionOwnedByAnotherUser(t *testing.T) {
	r, chatSvc := setupRouter(t, &stubAgent{}, "ana@x.com")
	snap, err := chatSvc.Open(context.Background(), "eve@x.com", "")
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/chat/"+snap.SessionID+"/", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestSubmitAndWait(t *testing.T) {
	r, _ := setupRouter(t, &stubAgent{reply: agent.Reply{Text: "Top 3: A, B, C"}}, "ana@x.com")
	snap := openSession(t, r)

	resp := doJSON(r, http.MethodPost, "/chat/"+snap.SessionID+"/messages?wait=true", `{"text":"top clientes"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body struct {
		Answer chatModel.Message `json:"answer"`
		Failed bool              `json:"failed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body.Answer.Text != "Top 3: A, B, C" || body.Failed {
		t.Fatalf("unexpected answer %+v", body)
	}
}

func TestSubmitEmptyText(t *testing.T) {
	r, _ := setupRouter(t, &stubAgent{}, "ana@x.com")
	snap := openSession(t, r)

	resp := doJSON(r, http.MethodPost, "/chat/"+snap.SessionID+"/messages", `{"text":"  "}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSelectUnknownModel(t *testing.T) {
	r, _ := setupRouter(t, &stubAgent{}, "ana@x.com")
	snap := openSession(t, r)

	resp := doJSON(r, http.MethodPut, "/chat/"+snap.SessionID+"/model", `{"modelId":"Analytic_Model_Marketing"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	resp = doJSON(r, http.MethodPut, "/chat/"+snap.SessionID+"/model", `{"modelId":"Analytic_Model_Produccion"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestSetDraft(t *testing.T) {
	r, _ := setupRouter(t, &stubAgent{}, "ana@x.com")
	snap := openSession(t, r)

	resp := doJSON(r, http.MethodPut, "/chat/"+snap.SessionID+"/draft", `{"text":"ventas"}`)
	var got chatModel.Snapshot
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Draft != "ventas" {
		t.Fatalf("draft not stored: %+v", got)
	}
}

func multipartAudio(t *testing.T, field string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, "clip.webm")
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	part.Write([]byte("audio-bytes"))
	writer.Close()
	return body, writer.FormDataContentType()
}

func TestTranscribeSetsDraft(t *testing.T) {
	r, _ := setupRouter(t, &stubAgent{transcript: "ventas de marzo"}, "ana@x.com")
	snap := openSession(t, r)

	body, contentType := multipartAudio(t, "audio")
	req := httptest.NewRequest(http.MethodPost, "/chat/"+snap.SessionID+"/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var got struct {
		Transcription string             `json:"transcription"`
		Snapshot      chatModel.Snapshot `json:"snapshot"`
	}
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Transcription != "ventas de marzo" || got.Snapshot.Draft != "ventas de marzo" {
		t.Fatalf("unexpected response %+v", got)
	}
}

func TestTranscribeFailure(t *testing.T) {
	stub := &stubAgent{transcribeErr: &agent.StatusError{Status: http.StatusBadRequest, Message: "bad format"}}
	r, _ := setupRouter(t, stub, "ana@x.com")
	snap := openSession(t, r)

	body, contentType := multipartAudio(t, "audio")
	req := httptest.NewRequest(http.MethodPost, "/chat/"+snap.SessionID+"/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
}

func TestTranscribeMissingAudio(t *testing.T) {
	r, _ := setupRouter(t, &stubAgent{}, "ana@x.com")
	snap := openSession(t, r)

	body, contentType := multipartAudio(t, "file")
	req := httptest.NewRequest(http.MethodPost, "/chat/"+snap.SessionID+"/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func streamOnce(t *testing.T, r http.Handler, sessionID string) *httptest.ResponseRecorder {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/chat/"+sessionID+"/events", nil).WithContext(ctx)
	resp := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		r.ServeHTTP(resp, req)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("event stream did not end")
	}
	return resp
}

func TestEventsStreamReconnectKeepsConversation(t *testing.T) {
	r, chatSvc := setupRouter(t, &stubAgent{reply: agent.Reply{Text: "Cliente A, B, C"}}, "ana@x.com", chatService.WithIdleGrace(time.Minute))
	snap := openSession(t, r)

	if resp := doJSON(r, http.MethodPost, "/chat/"+snap.SessionID+"/messages?wait=true", `{"text":"top clientes"}`); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	first := streamOnce(t, r, snap.SessionID)
	if first.Code != http.StatusOK || !strings.Contains(first.Body.String(), "event: snapshot") {
		t.Fatalf("expected initial snapshot, got %d %q", first.Code, first.Body.String())
	}

	second := streamOnce(t, r, snap.SessionID)
	if second.Code != http.StatusOK {
		t.Fatalf("reconnect should succeed, got %d %q", second.Code, second.Body.String())
	}
	if !strings.Contains(second.Body.String(), "Cliente A, B, C") {
		t.Fatalf("reconnected snapshot should carry the conversation, got %q", second.Body.String())
	}

	current, err := chatSvc.Snapshot(context.Background(), snap.SessionID)
	if err != nil {
		t.Fatalf("session should survive a dropped stream: %v", err)
	}
	if len(current.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(current.Messages))
	}
}

func TestEventsStreamWithoutGraceClosesSession(t *testing.T) {
	r, chatSvc := setupRouter(t, &stubAgent{}, "ana@x.com", chatService.WithIdleGrace(0))
	snap := openSession(t, r)

	resp := streamOnce(t, r, snap.SessionID)
	if !strings.Contains(resp.Body.String(), "event: snapshot") {
		t.Fatalf("expected initial snapshot, got %q", resp.Body.String())
	}
	if _, err := chatSvc.Snapshot(context.Background(), snap.SessionID); err == nil {
		t.Fatalf("session should be closed with its stream")
	}
}

func TestOpenSessionReportsSessionID(t *testing.T) {
	r, _ := setupRouter(t, &stubAgent{}, "ana@x.com")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/chat/session", nil))

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	id, _ := body["sessionId"].(string)
	if id == "" {
		t.Fatalf("snapshot should carry sessionId, got %v", body)
	}
	if _, ok := body["id"]; ok {
		t.Fatalf("snapshot should not carry a bare id field: %v", body)
	}
}
