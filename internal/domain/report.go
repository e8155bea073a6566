package domain

import "time"

// Score bounds for all QA report scores.
const (
	MinScore = 1
	MaxScore = 5
)

// ReportScores holds the three structured quality scores, each 1-5.
type ReportScores struct {
	Accuracy      int `json:"accuracy"`
	Procedure     int `json:"procedure"`
	Documentation int `json:"documentation"`
}

// QAReport is the structured output of one incident review.
// The serialized field set is a compatibility contract with the
// downstream dashboards; do not add or remove keys.
type QAReport struct {
	IncidentID         string       `json:"incident_id"`
	Analyst            string       `json:"analyst"`
	Scores             ReportScores `json:"scores"`
	MissedSteps        []string     `json:"missed_steps"`
	EscalationRequired bool         `json:"escalation_required"`
	Summary            string       `json:"summary"`
	Recommendations    []string     `json:"recommendations"`
	GeneratedAt        time.Time    `json:"generated_at"`
	Model              string       `json:"model"`
}

// Validate checks the report against the output contract.
func (r *QAReport) Validate() error {
	if r.IncidentID == "" {
		return ErrMissingIncidentID
	}
	if !validScore(r.Scores.Accuracy) || !validScore(r.Scores.Procedure) || !validScore(r.Scores.Documentation) {
		return ErrScoreOutOfRange
	}
	for _, step := range r.MissedSteps {
		if step == "" {
			return ErrEmptyMissedStep
		}
	}
	if r.Summary == "" {
		return ErrMissingSummary
	}
	return nil
}

func validScore(s int) bool {
	return s >= MinScore && s <= MaxScore
}
