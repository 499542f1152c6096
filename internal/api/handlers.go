package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hannahlabs/leadflow/internal/flow"
	"github.com/hannahlabs/leadflow/internal/models"
)

// phoneRef matches the SMS gateway's nested number objects.
type phoneRef struct {
	PhoneNumber string `json:"phone_number"`
}

// inboundSMSRequest is the gateway webhook payload for an inbound text.
type inboundSMSRequest struct {
	From phoneRef   `json:"from"`
	To   []phoneRef `json:"to"`
	Text string     `json:"text"`
}

func (r inboundSMSRequest) parts() (from, to, body string) {
	from = r.From.PhoneNumber
	if len(r.To) > 0 {
		to = r.To[0].PhoneNumber
	}
	return from, to, r.Text
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return false
	}
	return true
}

// inboundSMSHandler handles POST /v1/inbound-sms, the lead conversation webhook.
func (s *Server) inboundSMSHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requirePost(w, r) {
		return
	}
	var req inboundSMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.inboundSMSHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	from, to, body := req.parts()

	reply, err := s.orchestrator.HandleInboundMessage(r.Context(), from, to, body)
	if err != nil {
		writeError(w, "inboundSMSHandler", err)
		return
	}
	slog.Info("Server.inboundSMSHandler: exchange completed", "from", from, "to", to)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(reply, nil))
}

// agentFAQHandler handles POST /v1/inbound-sms/agent-faq, the staff FAQ channel.
func (s *Server) agentFAQHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requirePost(w, r) {
		return
	}
	var req inboundSMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.agentFAQHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	from, to, body := req.parts()

	reply, err := s.orchestrator.HandleAgentFAQ(r.Context(), from, to, body)
	if err != nil {
		writeError(w, "agentFAQHandler", err)
		return
	}
	slog.Info("Server.agentFAQHandler: exchange completed", "from", from, "to", to)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(reply, nil))
}

// webLeadHandler handles POST /v1/web-lead, the website form webhook.
func (s *Server) webLeadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requirePost(w, r) {
		return
	}
	var form flow.WebLeadForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		slog.Warn("Server.webLeadHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	msg, err := s.orchestrator.HandleWebLead(r.Context(), form)
	if err != nil {
		writeError(w, "webLeadHandler", err)
		return
	}
	slog.Info("Server.webLeadHandler: web lead processed", "to", form.PhoneNumberTo)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(msg, nil))
}

// callEndedHandler handles POST /v1/inbound/call-ended, the call summary webhook.
func (s *Server) callEndedHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requirePost(w, r) {
		return
	}
	var payload flow.CallEnded
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("Server.callEndedHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := s.orchestrator.HandleCallEnded(r.Context(), payload); err != nil {
		writeError(w, "callEndedHandler", err)
		return
	}
	slog.Info("Server.callEndedHandler: call summary stored", "from", payload.From)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Call summary stored", nil))
}

// emailScrapingHandler handles POST /v1/email-scraping, tasks extracted from
// tenant inbox emails.
func (s *Server) emailScrapingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requirePost(w, r) {
		return
	}
	var req flow.EmailScraping
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.emailScrapingHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	reply, err := s.orchestrator.HandleEmailScraping(r.Context(), req)
	if err != nil {
		writeError(w, "emailScrapingHandler", err)
		return
	}
	slog.Info("Server.emailScrapingHandler: task processed", "from_email", req.FromEmail)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(reply, nil))
}

// availabilityHandler handles GET /v1/availability?phone=..., always forcing a
// fresh slot computation.
func (s *Server) availabilityHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required parameter: phone"))
		return
	}

	slots, err := s.availability.CompanyAvailability(r.Context(), phone, true)
	if err != nil {
		writeError(w, "availabilityHandler", err)
		return
	}
	slog.Debug("Server.availabilityHandler: slots computed", "phone", phone, "count", len(slots))
	writeJSONResponse(w, http.StatusOK, models.Success(slots))
}

// healthHandler provides a liveness probe for monitoring and load balancing.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}
