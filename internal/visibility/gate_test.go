package visibility

import (
	"encoding/json"
	"strings"
	"testing"

	"staffline/internal/domain"
)

func fixture(level domain.Visibility) (domain.Participant, domain.Candidate, domain.Mission) {
	exp := 7
	c := domain.Candidate{
		ID: "c1", FirstName: "Marie", LastName: "dupont", City: "Lyon",
		Email: "marie@example.com", Phone: "+33612345678",
		Skills: []string{"CACES 3", "Inventaire"}, ExperienceYears: &exp,
	}
	m := domain.Mission{ID: "m1", Title: "Cariste"}
	p := domain.Participant{ID: "p1", CandidateID: c.ID, Visibility: level, ProposedToClient: true}
	return p, c, m
}

func TestProjectFull(t *testing.T) {
	v := Project(fixture(domain.VisibilityFull))
	if v.DisplayName != "Marie dupont" || v.City != "Lyon" || len(v.Skills) != 2 || *v.ExperienceYears != 7 {
		t.Fatalf("unexpected full view %+v", v)
	}
}

func TestProjectPartial(t *testing.T) {
	v := Project(fixture(domain.VisibilityPartial))
	if v.DisplayName != "Marie D." {
		t.Fatalf("expected short name, got %q", v.DisplayName)
	}
	if v.City != "" {
		t.Fatalf("city must be suppressed, got %q", v.City)
	}
	if len(v.Skills) != 2 || v.ExperienceYears == nil {
		t.Fatalf("skills and experience must stay visible: %+v", v)
	}
}

func TestProjectAnonymousLeaksNothing(t *testing.T) {
	for _, level := range []domain.Visibility{domain.VisibilityAnonymous, "", "SECRET"} {
		v := Project(fixture(level))
		if v.Visibility != domain.VisibilityAnonymous {
			t.Fatalf("level %q: expected ANONYMOUS, got %q", level, v.Visibility)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body := string(raw)
		for _, leak := range []string{"Marie", "dupont", "Lyon", "CACES", "Inventaire", "marie@example.com", "+33612345678"} {
			if strings.Contains(body, leak) {
				t.Fatalf("level %q leaked %q: %s", level, leak, body)
			}
		}
		if v.MissionTitle != "Cariste" || v.ParticipantID != "p1" {
			t.Fatalf("existence and mission must stay visible: %+v", v)
		}
	}
}

func TestProjectDoesNotAliasCandidate(t *testing.T) {
	p, c, m := fixture(domain.VisibilityFull)
	v := Project(p, c, m)
	v.Skills[0] = "changed"
	*v.ExperienceYears = 1
	if c.Skills[0] != "CACES 3" || *c.ExperienceYears != 7 {
		t.Fatalf("view must not alias candidate data")
	}
}

func TestShortName(t *testing.T) {
	cases := map[[2]string]string{
		{"Marie", "Dupont"}: "Marie D.",
		{"Élodie", "éric"}:  "Élodie É.",
		{"Marie", ""}:       "Marie",
		{"", "Dupont"}:      "D.",
	}
	for in, want := range cases {
		if got := ShortName(in[0], in[1]); got != want {
			t.Fatalf("ShortName(%q, %q) = %q, want %q", in[0], in[1], got, want)
		}
	}
}

func TestSummary(t *testing.T) {
	partial := Project(fixture(domain.VisibilityPartial)).Summary()
	if !strings.HasPrefix(partial, "Marie D.\nCompétences : CACES 3, Inventaire") || strings.Contains(partial, "Lyon") {
		t.Fatalf("unexpected partial summary %q", partial)
	}
	anon := Project(fixture(domain.VisibilityAnonymous)).Summary()
	if anon != "Profil anonyme\nMission : Cariste" {
		t.Fatalf("unexpected anonymous summary %q", anon)
	}
}
