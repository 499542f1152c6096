// Package models defines the core data structures for LeadFlow.
//
// It includes the lead, company, owner and event records shared across modules,
// the structured assistant reply types, and the API response envelope.
package models

import (
	"errors"
	"strings"
)

// Pathway identifies the acquisition channel of a lead. It is set when the
// lead is created and selects the conversation profile for every later message.
type Pathway string

const (
	// PathwayCall marks leads created from a completed phone call.
	PathwayCall Pathway = "call"
	// PathwaySMS marks leads created from an inbound text message.
	PathwaySMS Pathway = "sms"
	// PathwayWebsite marks leads created from a website form submission.
	PathwayWebsite Pathway = "website"
)

// IsValidPathway checks if the given pathway is supported.
func IsValidPathway(p Pathway) bool {
	switch p {
	case PathwayCall, PathwaySMS, PathwayWebsite:
		return true
	default:
		return false
	}
}

// Direction indicates whether a conversation message was received or sent.
type Direction string

const (
	// DirectionInbound is a message received from the lead or staff member.
	DirectionInbound Direction = "inbound"
	// DirectionOutbound is a message sent by the assistant.
	DirectionOutbound Direction = "outbound"
)

// Validation constants for inbound webhook payloads.
const (
	// MinPhoneNumberLength is the minimum accepted length for a phone number string.
	MinPhoneNumberLength = 10
	// DefaultEventDurationMinutes is applied when task data gives a start but no end.
	DefaultEventDurationMinutes = 60
)

// Error variables for better error handling and testability
var (
	ErrMissingFields      = errors.New("missing required fields")
	ErrShortPhoneNumber   = errors.New("phone number must have at least 10 characters")
	ErrSamePhoneNumber    = errors.New("from and to numbers are the same")
	ErrBlockedSender      = errors.New("sender number is blocked")
	ErrDuplicateMessage   = errors.New("duplicate message detected")
	ErrLeadNotFound       = errors.New("lead not found")
	ErrCompanyNotFound    = errors.New("company not found")
	ErrOwnerNotFound      = errors.New("owner not found")
	ErrEventNotFound      = errors.New("event not found")
	ErrUnknownPathway     = errors.New("unknown lead pathway")
	ErrMalformedTimestamp = errors.New("malformed event timestamp")
	ErrAvailabilityFetch  = errors.New("failed to fetch events for availability")
	ErrResponseParse      = errors.New("assistant response is not valid JSON")
	ErrBackendTimeout     = errors.New("assistant run did not finish in time")
	ErrMissingField       = errors.New("task data is missing a required field")
)

// Lead is the identity record for a potential customer, keyed by phone number
// within a company. Field names mirror the wire format used by the dashboard.
type Lead struct {
	ID                 string  `json:"id,omitempty"`
	PhoneNumber        string  `json:"phoneNumber"`
	CompanyPhoneNumber string  `json:"companyPhoneNumber,omitempty"`
	FirstName          string  `json:"firstName,omitempty"`
	LastName           string  `json:"lastName,omitempty"`
	Email              string  `json:"email,omitempty"`
	Status             string  `json:"status,omitempty"`
	Pathway            Pathway `json:"pathway,omitempty"`
	LeadOwnerID        string  `json:"leadOwnerId,omitempty"`
	LeadCreatorID      string  `json:"leadCreator,omitempty"`
	Budget             string  `json:"budget,omitempty"`
	MoveInDate         string  `json:"moveInDate,omitempty"`
	DesiredLocation    string  `json:"desiredLocation,omitempty"`
	BedsBath           string  `json:"bedsBath,omitempty"`
	HowDidYouHear      string  `json:"howDidYouHear,omitempty"`
	CompanyName        string  `json:"companyName,omitempty"`
	Subscribed         string  `json:"subscribed,omitempty"`
	CriminalHistory    string  `json:"criminalHistory,omitempty"`
	NeedsApartment     bool    `json:"needsApartment,omitempty"`
	IsInterested       bool    `json:"isInterested,omitempty"`
	AppointmentTime    string  `json:"appointmentTime,omitempty"`
	TranscriptSummary  string  `json:"transcriptSummary,omitempty"`
	DateCreated        string  `json:"dateCreated,omitempty"`
	DateUpdated        string  `json:"dateUpdated,omitempty"`
	LastResponse       string  `json:"lastResponse,omitempty"`
}

// FullName joins the lead's first and last name for display.
func (l Lead) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}

// Company is a tenant record. Each intake channel has its own phone number so
// an inbound destination number identifies both the tenant and the channel.
type Company struct {
	ID          string   `json:"id,omitempty"`
	OwnerID     string   `json:"ownerId"`
	TextNumber  string   `json:"liTextNumber,omitempty"`  // SMS lead intake
	WebNumber   string   `json:"liPhoneNumber,omitempty"` // website/voice lead intake
	FAQNumber   string   `json:"agentFAQNumber,omitempty"`
	Email       string   `json:"email,omitempty"`
	CompanyName string   `json:"companyName,omitempty"`
	FirstText   string   `json:"firstText,omitempty"` // greeting template, "[-]" = first name
	Leads       []string `json:"leads,omitempty"`
}

// Owner is the single staff user of a company.
type Owner struct {
	ID          string   `json:"id,omitempty"`
	PhoneNumber string   `json:"phoneNumber"`
	Leads       []string `json:"leads,omitempty"`
}

// Event is an appointment on an owner's calendar. Start and End are ISO-8601
// UTC instants. At most one event exists per (owner, start) pair.
type Event struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	Start   string `json:"start"`
	End     string `json:"end"`
	OwnerID string `json:"ownerId"`
}

// ConversationMessage is one entry of a lead's (or owner's) conversation log.
// Append-only, ordered by timestamp.
type ConversationMessage struct {
	Content   string    `json:"content"`
	Direction Direction `json:"direction"`
	Timestamp string    `json:"timestamp"`
	Automated bool      `json:"automated,omitempty"`
}

// InboundText is a message received from a chat transport (SMS webhook or a
// push transport like WhatsApp).
type InboundText struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// TaskData is the action directive embedded in an assistant reply. It is
// consumed once per reply and never persisted.
type TaskData struct {
	Work        bool   `json:"work,omitempty"`
	Action      string `json:"action,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Email       string `json:"email,omitempty"`
	Status      string `json:"status,omitempty"`
	Title       string `json:"title,omitempty"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	Duration    int    `json:"duration,omitempty"`
}

// NormalizedAction returns the case-folded, trimmed action label.
func (t TaskData) NormalizedAction() string {
	return strings.ToLower(strings.TrimSpace(t.Action))
}

// UserObject carries the identity pair echoed back by the assistant.
type UserObject struct {
	PhoneNumber        string `json:"phoneNumber,omitempty"`
	CompanyPhoneNumber string `json:"companyPhoneNumber,omitempty"`
}

// AIReply is the structured response parsed from the assistant's message text.
type AIReply struct {
	ChatResponse string         `json:"chatResponse"`
	TaskData     TaskData       `json:"taskData,omitempty"`
	UserData     map[string]any `json:"userData,omitempty"`
	UserObject   UserObject     `json:"userObject,omitempty"`
}

// FallbackReply is the defined degraded-success value returned when the
// assistant run fails, is cancelled, or produces no message. Callers treat it
// like any other reply.
func FallbackReply(phone, companyPhone string) AIReply {
	return AIReply{
		ChatResponse: "No response from assistant.",
		TaskData:     TaskData{},
		UserObject:   UserObject{PhoneNumber: phone, CompanyPhoneNumber: companyPhone},
	}
}

// leadPatchFields is the allow-list of userData keys that may be written onto
// a lead record. Unknown keys are dropped.
var leadPatchFields = []string{
	"firstName", "lastName", "email", "phone", "beds", "baths", "budget",
	"moveInDate", "desiredLocation", "goalNumber", "reasonForMove", "notes",
	"backgroundQualify", "mustHaves", "status", "criminalHistory",
	"isInterested", "needsApartment", "appointmentTime",
}

// LeadPatchFromUserData filters the assistant's userData object down to the
// allow-listed lead fields. A non-empty appointmentTime is blanked so the
// dashboard re-derives it from the event record.
func LeadPatchFromUserData(userData map[string]any) map[string]any {
	if len(userData) == 0 {
		return nil
	}
	patch := make(map[string]any)
	for _, field := range leadPatchFields {
		if v, ok := userData[field]; ok {
			patch[field] = v
		}
	}
	if v, ok := userData["appointmentTime"]; ok && v != nil && v != "" {
		patch["appointmentTime"] = ""
	}
	if len(patch) == 0 {
		return nil
	}
	return patch
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard JSON envelope returned by every endpoint.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result any) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result any) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
