package models

import "testing"

func TestIsValidPathway(t *testing.T) {
	valid := []Pathway{PathwayCall, PathwaySMS, PathwayWebsite}
	for _, p := range valid {
		if !IsValidPathway(p) {
			t.Errorf("expected pathway %q to be valid", p)
		}
	}
	invalid := []Pathway{"", "voicemail", "CALL"}
	for _, p := range invalid {
		if IsValidPathway(p) {
			t.Errorf("expected pathway %q to be invalid", p)
		}
	}
}

func TestNormalizedAction(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Create Lead", "create lead"},
		{"  UPDATE EVENT ", "update event"},
		{"guest card", "guest card"},
		{"", ""},
	}
	for _, c := range cases {
		got := TaskData{Action: c.in}.NormalizedAction()
		if got != c.want {
			t.Errorf("NormalizedAction(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestLeadPatchFromUserData_AllowList(t *testing.T) {
	patch := LeadPatchFromUserData(map[string]any{
		"firstName": "Ada",
		"email":     "ada@example.com",
		"apiKey":    "should-be-dropped",
		"budget":    "1500",
	})
	if patch == nil {
		t.Fatal("expected non-nil patch")
	}
	if patch["firstName"] != "Ada" || patch["email"] != "ada@example.com" || patch["budget"] != "1500" {
		t.Errorf("allow-listed fields missing from patch: %v", patch)
	}
	if _, ok := patch["apiKey"]; ok {
		t.Error("unknown field leaked through allow-list")
	}
}

func TestLeadPatchFromUserData_BlanksAppointmentTime(t *testing.T) {
	patch := LeadPatchFromUserData(map[string]any{"appointmentTime": "2024-06-01T09:00:00"})
	if patch["appointmentTime"] != "" {
		t.Errorf("expected appointmentTime blanked, got %v", patch["appointmentTime"])
	}
}

func TestLeadPatchFromUserData_Empty(t *testing.T) {
	if patch := LeadPatchFromUserData(nil); patch != nil {
		t.Errorf("expected nil patch for nil userData, got %v", patch)
	}
	if patch := LeadPatchFromUserData(map[string]any{"unknown": 1}); patch != nil {
		t.Errorf("expected nil patch when nothing allow-listed, got %v", patch)
	}
}

func TestFallbackReply(t *testing.T) {
	reply := FallbackReply("+15551234567", "+18177655422")
	if reply.ChatResponse != "No response from assistant." {
		t.Errorf("unexpected fallback chat response: %q", reply.ChatResponse)
	}
	if reply.TaskData.Work {
		t.Error("fallback reply must not request work")
	}
	if reply.UserObject.PhoneNumber != "+15551234567" || reply.UserObject.CompanyPhoneNumber != "+18177655422" {
		t.Errorf("fallback user object mismatch: %+v", reply.UserObject)
	}
}

func TestFullName(t *testing.T) {
	if got := (Lead{FirstName: "Ada", LastName: "Lovelace"}).FullName(); got != "Ada Lovelace" {
		t.Errorf("FullName = %q", got)
	}
	if got := (Lead{FirstName: "Ada"}).FullName(); got != "Ada" {
		t.Errorf("FullName with missing last name = %q", got)
	}
}
