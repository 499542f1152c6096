package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hannahlabs/leadflow/internal/assistant"
	"github.com/hannahlabs/leadflow/internal/availability"
	"github.com/hannahlabs/leadflow/internal/dispatch"
	"github.com/hannahlabs/leadflow/internal/flow"
	"github.com/hannahlabs/leadflow/internal/models"
	"github.com/hannahlabs/leadflow/internal/store"
)

// stubBackend completes every run immediately with a fixed reply.
type stubBackend struct {
	reply string
}

func (b stubBackend) CreateContext(ctx context.Context) (string, error) { return "ctx-1", nil }
func (b stubBackend) AddMessage(ctx context.Context, contextID string, msg assistant.Message) error {
	return nil
}
func (b stubBackend) StartRun(ctx context.Context, contextID, assistantID string) (string, error) {
	return "run-1", nil
}
func (b stubBackend) GetRunState(ctx context.Context, contextID, runID string) (assistant.RunState, error) {
	return assistant.RunStateCompleted, nil
}
func (b stubBackend) LatestReply(ctx context.Context, contextID string) (string, error) {
	return b.reply, nil
}

type stubMessenger struct {
	sent []string
}

func (m *stubMessenger) ValidateAndCanonicalizeRecipient(r string) (string, error) { return r, nil }
func (m *stubMessenger) SendMessage(ctx context.Context, to, body string) error {
	m.sent = append(m.sent, body)
	return nil
}
func (m *stubMessenger) Start(ctx context.Context) error      { return nil }
func (m *stubMessenger) Stop() error                          { return nil }
func (m *stubMessenger) Responses() <-chan models.InboundText { return nil }

type stubEmail struct{}

func (stubEmail) SendEmail(ctx context.Context, to, subject, body string) error { return nil }

const (
	testTextNumber = "+18177655422"
	testFAQNumber  = "+18177655444"
	testOwnerPhone = "+19036467318"
)

func newTestServer(t *testing.T, reply string) *Server {
	t.Helper()
	ctx := context.Background()
	mem := store.NewInMemoryStore()
	ownerID, err := mem.UpsertOwner(ctx, models.Owner{PhoneNumber: testOwnerPhone})
	if err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	if _, err := mem.UpsertCompany(ctx, models.Company{
		OwnerID:    ownerID,
		TextNumber: testTextNumber,
		FAQNumber:  testFAQNumber,
		Email:      "leasing@example.com",
	}); err != nil {
		t.Fatalf("seed company: %v", err)
	}

	messenger := &stubMessenger{}
	ai := assistant.NewClient(stubBackend{reply: reply}, assistant.WithPollInterval(time.Millisecond))
	avail := availability.NewService(mem)
	disp := dispatch.NewDispatcher(mem, messenger, stubEmail{})
	orch := flow.NewOrchestrator(mem, ai, avail, disp, messenger, flow.NewDuplicateGuard())
	return NewServer(orch, avail)
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response envelope: %v", err)
	}
	return resp
}

func TestInboundSMSHandler_Success(t *testing.T) {
	srv := newTestServer(t, `{"chatResponse":"Happy to help!"}`)
	rr := postJSON(t, srv.Handler(), "/v1/inbound-sms",
		`{"from":{"phone_number":"+15551234567"},"to":[{"phone_number":"+18177655422"}],"text":"Hi"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeEnvelope(t, rr)
	if resp.Status != "ok" || resp.Message != "Happy to help!" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
}

func TestInboundSMSHandler_MissingFields(t *testing.T) {
	srv := newTestServer(t, `{"chatResponse":"ok"}`)
	rr := postJSON(t, srv.Handler(), "/v1/inbound-sms",
		`{"from":{"phone_number":"+15551234567"},"to":[{"phone_number":"+18177655422"}],"text":""}`)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
	if resp := decodeEnvelope(t, rr); resp.Status != "error" {
		t.Errorf("expected error envelope, got %+v", resp)
	}
}

func TestInboundSMSHandler_DuplicateRejected(t *testing.T) {
	srv := newTestServer(t, `{"chatResponse":"ok"}`)
	payload := `{"from":{"phone_number":"+15551234567"},"to":[{"phone_number":"+18177655422"}],"text":"Hi"}`

	if rr := postJSON(t, srv.Handler(), "/v1/inbound-sms", payload); rr.Code != http.StatusOK {
		t.Fatalf("first request failed: %d", rr.Code)
	}
	if rr := postJSON(t, srv.Handler(), "/v1/inbound-sms", payload); rr.Code != http.StatusBadRequest {
		t.Errorf("duplicate should be rejected with 400, got %d", rr.Code)
	}
}

func TestInboundSMSHandler_UnknownCompany(t *testing.T) {
	srv := newTestServer(t, `{"chatResponse":"ok"}`)
	rr := postJSON(t, srv.Handler(), "/v1/inbound-sms",
		`{"from":{"phone_number":"+15551234567"},"to":[{"phone_number":"+10000000000"}],"text":"Hi"}`)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestInboundSMSHandler_BadJSON(t *testing.T) {
	srv := newTestServer(t, `{"chatResponse":"ok"}`)
	rr := postJSON(t, srv.Handler(), "/v1/inbound-sms", `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestInboundSMSHandler_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, `{"chatResponse":"ok"}`)
	req := httptest.NewRequest(http.MethodGet, "/v1/inbound-sms", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
	if allow := rr.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("expected Allow: POST, got %q", allow)
	}
}

func TestAgentFAQHandler_UnregisteredSender(t *testing.T) {
	srv := newTestServer(t, `{"chatResponse":"ok"}`)
	rr := postJSON(t, srv.Handler(), "/v1/inbound-sms/agent-faq",
		`{"from":{"phone_number":"+15550001111"},"to":[{"phone_number":"+18177655444"}],"text":"hello?"}`)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAgentFAQHandler_Success(t *testing.T) {
	srv := newTestServer(t, `{"chatResponse":"The pool opens at 9am."}`)
	rr := postJSON(t, srv.Handler(), "/v1/inbound-sms/agent-faq",
		`{"from":{"phone_number":"+19036467318"},"to":[{"phone_number":"+18177655444"}],"text":"When does the pool open?"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if resp := decodeEnvelope(t, rr); resp.Message != "The pool opens at 9am." {
		t.Errorf("unexpected envelope: %+v", resp)
	}
}

func TestWebLeadHandler_Success(t *testing.T) {
	srv := newTestServer(t, `{"chatResponse":"ok"}`)
	rr := postJSON(t, srv.Handler(), "/v1/web-lead",
		`{"firstName":"Ada","lastName":"Lovelace","phone":"+15551234567","phoneNumberTo":"+18177655499","budget":"1500"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if resp := decodeEnvelope(t, rr); resp.Message != "Webhook received and processed" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
}

func TestWebLeadHandler_ShortPhone(t *testing.T) {
	srv := newTestServer(t, `{"chatResponse":"ok"}`)
	rr := postJSON(t, srv.Handler(), "/v1/web-lead", `{"firstName":"Ada","phone":"123","phoneNumberTo":"+18177655499"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestCallEndedHandler_Success(t *testing.T) {
	srv := newTestServer(t, `{"chatResponse":"ok"}`)
	rr := postJSON(t, srv.Handler(), "/v1/inbound/call-ended",
		`{"from":"+15551234567","to":"+18177655499","summary":"Wants a Saturday tour.","analysis":{"firstName":"Ada"}}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestEmailScrapingHandler_UnknownCompany(t *testing.T) {
	srv := newTestServer(t, `{"chatResponse":"ok"}`)
	rr := postJSON(t, srv.Handler(), "/v1/email-scraping",
		`{"fromEmail":"nobody@example.com","phoneNumber":"+15551234567","task":"Schedule a tour"}`)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestEmailScrapingHandler_Success(t *testing.T) {
	srv := newTestServer(t, `{"chatResponse":"I'll follow up."}`)
	rr := postJSON(t, srv.Handler(), "/v1/email-scraping",
		`{"fromEmail":"leasing@example.com","phoneNumber":"+15551234567","task":"Schedule a tour for unit 4B"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if resp := decodeEnvelope(t, rr); resp.Message != "I'll follow up." {
		t.Errorf("unexpected envelope: %+v", resp)
	}
}

func TestAvailabilityHandler(t *testing.T) {
	srv := newTestServer(t, `{"chatResponse":"ok"}`)

	req := httptest.NewRequest(http.MethodGet, "/v1/availability?phone="+url.QueryEscape(testTextNumber), nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeEnvelope(t, rr)
	slots, ok := resp.Result.([]interface{})
	if !ok || len(slots) == 0 {
		t.Errorf("expected open slots for a company with no events, got %+v", resp.Result)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/availability", nil)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing phone should be 400, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/availability?phone=%2B10000000000", nil)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown company should be 404, got %d", rr.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	srv := newTestServer(t, `{"chatResponse":"ok"}`)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}
