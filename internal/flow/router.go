package flow

import (
	"fmt"

	"github.com/hannahlabs/leadflow/internal/models"
)

// defaultOverrides maps special intake numbers to their dedicated profiles,
// checked before the lead's pathway.
var defaultOverrides = map[string]Profile{
	"+17209535293": profileAptAmigo,
	"+12816260629": profilePathfinders,
}

// Router selects the conversation profile for an exchange. Destination-number
// overrides win; otherwise the lead's acquisition pathway decides.
type Router struct {
	overrides map[string]Profile
}

// NewRouter creates a router with the default override numbers.
func NewRouter() *Router {
	return &Router{overrides: defaultOverrides}
}

// Route returns the profile for a message arriving on companyPhone from a lead
// acquired via pathway. An unrecognized pathway is a configuration fault and
// fails with models.ErrUnknownPathway rather than silently dropping the reply.
func (r *Router) Route(companyPhone string, pathway models.Pathway) (Profile, error) {
	if p, ok := r.overrides[companyPhone]; ok {
		return p, nil
	}
	switch pathway {
	case models.PathwayCall:
		return profileLeadDetailsConfirmation, nil
	case models.PathwaySMS:
		return profileConversationSMS, nil
	case models.PathwayWebsite:
		return profileAppointmentSetting, nil
	default:
		return Profile{}, fmt.Errorf("%w: %q", models.ErrUnknownPathway, pathway)
	}
}
