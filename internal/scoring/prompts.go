package scoring

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"staffline/internal/domain"
)

//go:embed shortlist_prompt.md
var shortlistTemplate string

//go:embed rank_prompt.md
var rankTemplate string

var criterionLabels = map[domain.CriterionName]string{
	domain.CriterionSkills:       "Compétences et savoir-faire",
	domain.CriterionExperience:   "Expérience",
	domain.CriterionAvailability: "Disponibilité (AVAILABLE = max, BUSY = 50%, UNAVAILABLE = 0)",
	domain.CriterionLocation:     "Localisation / proximité géographique",
}

func orNC(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "NC"
	}
	return s
}

func experience(c domain.Candidate) int {
	if c.ExperienceYears == nil {
		return 0
	}
	return *c.ExperienceYears
}

func buildShortlistPrompt(req ShortlistRequest, size int) string {
	var lines []string
	for i, c := range req.Candidates {
		lines = append(lines, fmt.Sprintf("%d. %s | Compétences: %s | Expérience: %dans | Ville: %s",
			i+1, c.FullName(), strings.Join(c.Skills, ", "), experience(c), orNC(c.City)))
	}
	r := strings.NewReplacer(
		"{{TITLE}}", req.Mission.Title,
		"{{LOCATION}}", orNC(req.Mission.Location),
		"{{SKILLS}}", orNC(strings.Join(req.Mission.RequiredSkills, ", ")),
		"{{TARGET}}", strconv.Itoa(req.Mission.TargetOrDefault()),
		"{{CANDIDATES}}", strings.Join(lines, "\n"),
		"{{SIZE}}", strconv.Itoa(size),
	)
	return r.Replace(shortlistTemplate)
}

type rankCandidate struct {
	ID           string   `json:"id"`
	FirstName    string   `json:"firstName"`
	LastName     string   `json:"lastName"`
	City         string   `json:"city"`
	Skills       []string `json:"skills"`
	Experience   int      `json:"experience"`
	Availability string   `json:"availability"`
}

func buildRankPrompt(req RankRequest) (string, error) {
	payload := make([]rankCandidate, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		city := c.City
		if city == "" {
			city = "Non renseignée"
		}
		payload = append(payload, rankCandidate{
			ID: c.ID, FirstName: c.FirstName, LastName: c.LastName, City: city,
			Skills: c.Skills, Experience: experience(c), Availability: string(c.Availability),
		})
	}
	candidatesJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidates: %w", err)
	}

	var criteria, breakdown []string
	for _, name := range domain.CriterionNames {
		cr := req.Rubric.Criterion(name)
		if !cr.Enabled {
			continue
		}
		criteria = append(criteria, fmt.Sprintf("- %s (%s): %d pts max", criterionLabels[name], name, cr.Weight))
		breakdown = append(breakdown, fmt.Sprintf("      %q: <number>", name))
	}

	r := strings.NewReplacer(
		"{{JOB}}", strings.TrimSpace(req.JobDescription),
		"{{TOTAL}}", strconv.Itoa(req.Rubric.EnabledTotal()),
		"{{CRITERIA}}", strings.Join(criteria, "\n"),
		"{{CANDIDATES}}", string(candidatesJSON),
		"{{BREAKDOWN}}", strings.Join(breakdown, ",\n"),
	)
	return r.Replace(rankTemplate), nil
}
