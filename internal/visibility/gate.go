// Package visibility decides which candidate fields a client may see.
//
// Every client-facing read goes through Project; callers never copy candidate
// fields into portal or notification payloads themselves.
package visibility

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"staffline/internal/domain"
)

// View is the client-facing shape of a participant. Fields the visibility
// level suppresses are left zero and omitted from JSON.
type View struct {
	ParticipantID   string            `json:"participant_id"`
	MissionID       string            `json:"mission_id"`
	MissionTitle    string            `json:"mission_title"`
	Visibility      domain.Visibility `json:"visibility" enum:"FULL,PARTIAL,ANONYMOUS"`
	DisplayName     string            `json:"display_name,omitempty"`
	City            string            `json:"city,omitempty"`
	Skills          []string          `json:"skills,omitempty"`
	ExperienceYears *int              `json:"experience_years,omitempty"`
	ProposedAt      *string           `json:"proposed_at,omitempty" format:"date-time"`
	Validated       bool              `json:"validated"`
	Refused         bool              `json:"refused"`
}

// Project renders the participant at its visibility level. An unknown level is
// treated as ANONYMOUS.
func Project(p domain.Participant, c domain.Candidate, m domain.Mission) View {
	v := View{
		ParticipantID: p.ID,
		MissionID:     m.ID,
		MissionTitle:  m.Title,
		Visibility:    p.Visibility,
		ProposedAt:    p.ProposedAt,
		Validated:     p.ClientValidated,
		Refused:       p.ClientRefused,
	}
	switch p.Visibility {
	case domain.VisibilityFull:
		v.DisplayName = c.FullName()
		v.City = c.City
		v.Skills = copySkills(c.Skills)
		v.ExperienceYears = copyInt(c.ExperienceYears)
	case domain.VisibilityPartial:
		v.DisplayName = ShortName(c.FirstName, c.LastName)
		v.Skills = copySkills(c.Skills)
		v.ExperienceYears = copyInt(c.ExperienceYears)
	default:
		v.Visibility = domain.VisibilityAnonymous
	}
	return v
}

// ShortName reduces a name to the first name plus the last name's initial.
func ShortName(first, last string) string {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	r, _ := utf8.DecodeRuneInString(last)
	if last == "" || r == utf8.RuneError {
		return first
	}
	if first == "" {
		return string(unicode.ToUpper(r)) + "."
	}
	return first + " " + string(unicode.ToUpper(r)) + "."
}

// Summary renders the visible fields as short French text lines for
// notifications.
func (v View) Summary() string {
	if v.Visibility == domain.VisibilityAnonymous {
		return fmt.Sprintf("Profil anonyme\nMission : %s", v.MissionTitle)
	}
	var lines []string
	if v.DisplayName != "" {
		lines = append(lines, v.DisplayName)
	}
	if v.City != "" {
		lines = append(lines, "Ville : "+v.City)
	}
	if len(v.Skills) > 0 {
		lines = append(lines, "Compétences : "+strings.Join(v.Skills, ", "))
	}
	if v.ExperienceYears != nil {
		lines = append(lines, fmt.Sprintf("Expérience : %d ans", *v.ExperienceYears))
	}
	return strings.Join(lines, "\n")
}

func copySkills(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyInt(in *int) *int {
	if in == nil {
		return nil
	}
	v := *in
	return &v
}
