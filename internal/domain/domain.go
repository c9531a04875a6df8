package domain

import "strings"

type PipelineStatus string

const (
	PipelineWaitingAgency PipelineStatus = "WAITING_AGENCY"
	PipelineRunning       PipelineStatus = "RUNNING"
	PipelineWaitingClient PipelineStatus = "WAITING_CLIENT"
	PipelineCompleted     PipelineStatus = "COMPLETED"
	PipelineAlert         PipelineStatus = "ALERT"
)

// Active reports whether the pipeline still needs agency or client attention.
func (s PipelineStatus) Active() bool {
	switch s {
	case PipelineWaitingAgency, PipelineRunning, PipelineWaitingClient:
		return true
	}
	return false
}

type OutreachStatus string

const (
	OutreachSent       OutreachStatus = "SENT"
	OutreachAccepted   OutreachStatus = "ACCEPTED"
	OutreachDeclined   OutreachStatus = "DECLINED"
	OutreachNoResponse OutreachStatus = "NO_RESPONSE"
)

type Availability string

const (
	Available   Availability = "AVAILABLE"
	Busy        Availability = "BUSY"
	Unavailable Availability = "UNAVAILABLE"
)

func ParseAvailability(s string) (Availability, bool) {
	switch a := Availability(strings.ToUpper(strings.TrimSpace(s))); a {
	case Available, Busy, Unavailable:
		return a, true
	}
	return "", false
}

type Visibility string

const (
	VisibilityFull      Visibility = "FULL"
	VisibilityPartial   Visibility = "PARTIAL"
	VisibilityAnonymous Visibility = "ANONYMOUS"
)

func ParseVisibility(s string) (Visibility, bool) {
	switch v := Visibility(strings.ToUpper(strings.TrimSpace(s))); v {
	case VisibilityFull, VisibilityPartial, VisibilityAnonymous:
		return v, true
	}
	return "", false
}

type Channel string

const (
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelEmail    Channel = "EMAIL"
	ChannelPortal   Channel = "PORTAL"
)

func ParseChannel(s string) (Channel, bool) {
	switch c := Channel(strings.ToUpper(strings.TrimSpace(s))); c {
	case ChannelSMS, ChannelWhatsApp, ChannelEmail, ChannelPortal:
		return c, true
	}
	return "", false
}

type Agency struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Candidate struct {
	ID              string       `json:"id"`
	AgencyID        string       `json:"agency_id"`
	FirstName       string       `json:"first_name"`
	LastName        string       `json:"last_name"`
	Email           string       `json:"email,omitempty"`
	Phone           string       `json:"phone,omitempty"`
	PhoneNorm       string       `json:"-"`
	City            string       `json:"city,omitempty"`
	Skills          []string     `json:"skills"`
	ExperienceYears *int         `json:"experience_years,omitempty"`
	Availability    Availability `json:"availability" enum:"AVAILABLE,BUSY,UNAVAILABLE"`
	CreatedAt       string       `json:"created_at" format:"date-time"`
	UpdatedAt       string       `json:"updated_at" format:"date-time"`
}

func (c Candidate) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type Client struct {
	ID          string `json:"id"`
	AgencyID    string `json:"agency_id"`
	Name        string `json:"name"`
	ContactName string `json:"contact_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	PhoneNorm   string `json:"-"`
	PortalToken string `json:"-"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Mission struct {
	ID             string    `json:"id"`
	AgencyID       string    `json:"agency_id"`
	ClientID       string    `json:"client_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Location       string    `json:"location,omitempty"`
	Target         int       `json:"target"`
	RequiredSkills []string  `json:"required_skills"`
	Channels       []Channel `json:"channels"`
	Status         string    `json:"status"`
	Source         string    `json:"source"`
	StartDate      *string   `json:"start_date,omitempty"`
	EndDate        *string   `json:"end_date,omitempty"`
	CreatedAt      string    `json:"created_at" format:"date-time"`
	UpdatedAt      string    `json:"updated_at" format:"date-time"`
}

// TargetOrDefault is the headcount used for quota and shortlist sizing.
func (m Mission) TargetOrDefault() int {
	if m.Target <= 0 {
		return 1
	}
	return m.Target
}

func (m Mission) HasChannel(c Channel) bool {
	for _, ch := range m.Channels {
		if ch == c {
			return true
		}
	}
	return false
}

type Pipeline struct {
	ID        string         `json:"id"`
	MissionID string         `json:"mission_id"`
	AgencyID  string         `json:"agency_id"`
	Status    PipelineStatus `json:"status" enum:"WAITING_AGENCY,RUNNING,WAITING_CLIENT,COMPLETED,ALERT"`
	CreatedAt string         `json:"created_at" format:"date-time"`
	UpdatedAt string         `json:"updated_at" format:"date-time"`
}

type Participant struct {
	ID               string         `json:"id"`
	PipelineID       string         `json:"pipeline_id"`
	CandidateID      string         `json:"candidate_id"`
	OutreachStatus   OutreachStatus `json:"outreach_status" enum:"SENT,ACCEPTED,DECLINED,NO_RESPONSE"`
	LastResponse     *string        `json:"last_response,omitempty"`
	ProposedToClient bool           `json:"proposed_to_client"`
	ProposedAt       *string        `json:"proposed_at,omitempty" format:"date-time"`
	ClientValidated  bool           `json:"client_validated"`
	ClientRefused    bool           `json:"client_refused"`
	ClientComment    *string        `json:"client_comment,omitempty"`
	Visibility       Visibility     `json:"visibility" enum:"FULL,PARTIAL,ANONYMOUS"`
	Selected         bool           `json:"selected"`
	CreatedAt        string         `json:"created_at" format:"date-time"`
	UpdatedAt        string         `json:"updated_at" format:"date-time"`
}

// Decided reports whether the client already validated or refused the participant.
func (p Participant) Decided() bool {
	return p.ClientValidated || p.ClientRefused
}

type ScoringPreset struct {
	ID        string `json:"id"`
	AgencyID  string `json:"agency_id"`
	Name      string `json:"name"`
	JobType   string `json:"job_type,omitempty"`
	Rubric    Rubric `json:"rubric"`
	IsDefault bool   `json:"is_default"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type InboundMessage struct {
	MessageID  string `json:"message_id"`
	AgencyID   string `json:"agency_id"`
	Sender     string `json:"sender"`
	Body       string `json:"body"`
	Outcome    string `json:"outcome"`
	ReceivedAt string `json:"received_at" format:"date-time"`
}

type PipelineStats struct {
	ActivePipelines int `json:"active_pipelines"`
	MessagesSent    int `json:"messages_sent"`
	PendingReplies  int `json:"pending_replies"`
	Validated       int `json:"validated"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	AgencyID   string `json:"agency_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

type APIKey struct {
	ID        string `json:"id"`
	AgencyID  string `json:"agency_id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
