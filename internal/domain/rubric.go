package domain

import "fmt"

// CriterionName identifies one of the fixed rubric criteria.
type CriterionName string

const (
	CriterionSkills       CriterionName = "skills"
	CriterionExperience   CriterionName = "experience"
	CriterionAvailability CriterionName = "availability"
	CriterionLocation     CriterionName = "location"
)

// CriterionNames lists the rubric criteria in presentation order.
var CriterionNames = []CriterionName{CriterionSkills, CriterionExperience, CriterionAvailability, CriterionLocation}

type Criterion struct {
	Weight  int  `json:"weight" minimum:"0" maximum:"100"`
	Enabled bool `json:"enabled"`
}

// Rubric is the closed set of weighted scoring criteria.
type Rubric struct {
	Skills       Criterion `json:"skills"`
	Experience   Criterion `json:"experience"`
	Availability Criterion `json:"availability"`
	Location     Criterion `json:"location"`
}

func DefaultRubric() Rubric {
	return Rubric{
		Skills:       Criterion{Weight: 40, Enabled: true},
		Experience:   Criterion{Weight: 30, Enabled: true},
		Availability: Criterion{Weight: 20, Enabled: true},
		Location:     Criterion{Weight: 10, Enabled: true},
	}
}

func (r Rubric) Criterion(name CriterionName) Criterion {
	switch name {
	case CriterionSkills:
		return r.Skills
	case CriterionExperience:
		return r.Experience
	case CriterionAvailability:
		return r.Availability
	case CriterionLocation:
		return r.Location
	}
	return Criterion{}
}

// EnabledTotal is the maximum score reachable with this rubric.
func (r Rubric) EnabledTotal() int {
	total := 0
	for _, name := range CriterionNames {
		if c := r.Criterion(name); c.Enabled {
			total += c.Weight
		}
	}
	return total
}

func (r Rubric) Validate() error {
	for _, name := range CriterionNames {
		if r.Criterion(name).Weight < 0 {
			return fmt.Errorf("invalid rubric: %s weight must not be negative", name)
		}
	}
	if r.EnabledTotal() == 0 {
		return fmt.Errorf("invalid rubric: at least one weighted criterion must be enabled")
	}
	return nil
}
