package server

import (
	"encoding/json"

	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/messaging"
)

// Request payloads

type CreateCandidateRequest struct {
	FirstName       string   `json:"first_name" minLength:"1"`
	LastName        string   `json:"last_name,omitempty"`
	Email           string   `json:"email,omitempty"`
	Phone           string   `json:"phone,omitempty"`
	City            string   `json:"city,omitempty"`
	Skills          []string `json:"skills,omitempty"`
	ExperienceYears *int     `json:"experience_years,omitempty" minimum:"0"`
	Availability    string   `json:"availability,omitempty" enum:"AVAILABLE,BUSY,UNAVAILABLE"`
}

type AvailabilityRequest struct {
	Availability string `json:"availability" enum:"AVAILABLE,BUSY,UNAVAILABLE"`
}

type CreateClientRequest struct {
	Name        string `json:"name" minLength:"1"`
	ContactName string `json:"contact_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

type CreateMissionRequest struct {
	ClientID       string   `json:"client_id,omitempty"`
	ClientName     string   `json:"client_name,omitempty"`
	Title          string   `json:"title" minLength:"1"`
	Description    string   `json:"description,omitempty"`
	Location       string   `json:"location,omitempty"`
	Target         int      `json:"target,omitempty" minimum:"0"`
	RequiredSkills []string `json:"required_skills,omitempty"`
	Channels       []string `json:"channels,omitempty"`
	StartDate      *string  `json:"start_date,omitempty"`
	EndDate        *string  `json:"end_date,omitempty"`
}

type UpdateMissionRequest struct {
	Title          *string   `json:"title,omitempty"`
	Description    *string   `json:"description,omitempty"`
	Location       *string   `json:"location,omitempty"`
	Target         *int      `json:"target,omitempty" minimum:"0"`
	RequiredSkills *[]string `json:"required_skills,omitempty"`
	Channels       *[]string `json:"channels,omitempty"`
	Status         *string   `json:"status,omitempty" enum:"OPEN,CLOSED"`
	StartDate      *string   `json:"start_date,omitempty"`
	EndDate        *string   `json:"end_date,omitempty"`
}

type ExpireRequest struct {
	OlderThanHours int `json:"older_than_hours" minimum:"0"`
}

type VisibilityRequest struct {
	Visibility string `json:"visibility" enum:"FULL,PARTIAL,ANONYMOUS"`
}

type DecisionRequest struct {
	Comment string `json:"comment,omitempty"`
}

func (r *DecisionRequest) comment() string {
	if r == nil {
		return ""
	}
	return r.Comment
}

type RankRequest struct {
	JobDescription string         `json:"job_description" minLength:"1"`
	Rubric         *domain.Rubric `json:"rubric,omitempty"`
	PresetID       string         `json:"preset_id,omitempty"`
}

type PresetRequest struct {
	Name      string        `json:"name" minLength:"1"`
	JobType   string        `json:"job_type,omitempty"`
	Rubric    domain.Rubric `json:"rubric"`
	IsDefault bool          `json:"is_default,omitempty"`
}

// Responses

type PortalTokenResponse struct {
	ClientID string `json:"client_id"`
	Token    string `json:"token"`
	URL      string `json:"url,omitempty"`
}

type CreateMissionResponse struct {
	Mission  domain.Mission  `json:"mission"`
	Pipeline domain.Pipeline `json:"pipeline"`
}

type ExpireResponse struct {
	PipelineID string `json:"pipeline_id"`
	Expired    int    `json:"expired"`
}

type LaunchResponse struct {
	Pipeline  domain.Pipeline      `json:"pipeline"`
	Admitted  []domain.Participant `json:"admitted"`
	AlreadyIn int                  `json:"already_in"`
	Requested int                  `json:"requested"`
	Fallback  bool                 `json:"fallback"`
	Delivery  messaging.Report     `json:"delivery"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	AgencyID   string         `json:"agency_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func candidateInput(in CreateCandidateRequest) engine.CandidateInput {
	return engine.CandidateInput{
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Email:           in.Email,
		Phone:           in.Phone,
		City:            in.City,
		Skills:          in.Skills,
		ExperienceYears: in.ExperienceYears,
		Availability:    domain.Availability(in.Availability),
	}
}

func channelsOf(in []string) []domain.Channel {
	if in == nil {
		return nil
	}
	out := make([]domain.Channel, 0, len(in))
	for _, ch := range in {
		out = append(out, domain.Channel(ch))
	}
	return out
}

func missionInput(in CreateMissionRequest) engine.MissionInput {
	return engine.MissionInput{
		ClientID:       in.ClientID,
		ClientName:     in.ClientName,
		Title:          in.Title,
		Description:    in.Description,
		Location:       in.Location,
		Target:         in.Target,
		RequiredSkills: in.RequiredSkills,
		Channels:       channelsOf(in.Channels),
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		Source:         engine.SourceManual,
	}
}

func missionPatch(in UpdateMissionRequest) engine.MissionPatch {
	patch := engine.MissionPatch{
		Title:          in.Title,
		Description:    in.Description,
		Location:       in.Location,
		Target:         in.Target,
		RequiredSkills: in.RequiredSkills,
		Status:         in.Status,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
	}
	if in.Channels != nil {
		chans := channelsOf(*in.Channels)
		patch.Channels = &chans
	}
	return patch
}

func launchResponse(r engine.LaunchResult) LaunchResponse {
	admitted := r.Admitted
	if admitted == nil {
		admitted = []domain.Participant{}
	}
	return LaunchResponse{
		Pipeline:  r.Pipeline,
		Admitted:  admitted,
		AlreadyIn: r.AlreadyIn,
		Requested: r.Requested,
		Fallback:  r.Fallback,
		Delivery:  r.Delivery,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		AgencyID:   e.AgencyID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}
