package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/vantagesec/socqa/internal/domain"
)

const defaultPromptTemplate = `You are a senior SOC analyst performing quality assurance review.

INCIDENT: {{.Title}}
ANALYST: {{.Analyst}}
INCIDENT_ID: {{.IncidentID}}
SEVERITY: {{.Severity}}

RAW NOTABLE DATA:
{{.NotableData}}

ANALYST ACTION TIMELINE:
{{.AuditTimeline}}

OFFICIAL SOC PLAYBOOK:
{{.ProcedureText}}

MITRE ATT&CK CONTEXT:
{{.TechniqueText}}

Compare the analyst's actions against the official playbook and MITRE ATT&CK context.
Use strong evidence to justify any score deductions. If there is no solid evidence of
failures, scores should be high. Only include recommendations when clear,
evidence-based improvements are required.

Respond with a single valid JSON object with exactly this structure:
{
  "scores": {
    "accuracy": <integer 1-5, was the final classification correct>,
    "procedure": <integer 1-5, were all playbook steps followed>,
    "documentation": <integer 1-5, are the notes clear and complete>
  },
  "missed_steps": [<zero or more non-empty strings>],
  "escalation_required": <boolean, true if escalation was required but not performed>,
  "summary": "<brief overall assessment>",
  "recommendations": [<zero or more non-empty strings>]
}`

const (
	noProcedureText = "No relevant playbook sections were found. Score procedure adherence from general SOC practice and note the missing playbook in the summary."
	noTechniqueText = "No MITRE ATT&CK context was found for this incident."
)

// Generator assembles the review prompt, invokes the LLM, and decodes
// the response into a validated QAReport. It performs no I/O beyond
// the LLM call.
type Generator struct {
	llm         LLMClient
	model       string
	temperature float32
	timeout     time.Duration
	tmpl        *template.Template
	now         func() time.Time
}

// GeneratorConfig holds LLM invocation parameters. PromptPath
// optionally overrides the built-in prompt template.
type GeneratorConfig struct {
	Model       string
	Temperature float32
	Timeout     time.Duration
	PromptPath  string
}

func NewGenerator(llm LLMClient, cfg GeneratorConfig) (*Generator, error) {
	text := defaultPromptTemplate
	if cfg.PromptPath != "" {
		raw, err := os.ReadFile(cfg.PromptPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt template: %w", err)
		}
		text = string(raw)
	}

	tmpl, err := template.New("qa_prompt").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}

	return &Generator{
		llm:         llm,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		tmpl:        tmpl,
		now:         time.Now,
	}, nil
}

type promptData struct {
	Title         string
	Analyst       string
	IncidentID    string
	Severity      string
	NotableData   string
	AuditTimeline string
	ProcedureText string
	TechniqueText string
}

// Generate produces a QAReport for one incident. Transport failures
// and timeouts surface as ModelUnavailable; schema violations surface
// as InvalidOutput carrying the raw model text. Neither is retried
// here.
func (g *Generator) Generate(ctx context.Context, incident domain.Incident, rc domain.RetrievedContext) (*domain.QAReport, error) {
	prompt, err := g.assemblePrompt(incident, rc)
	if err != nil {
		return nil, domain.NewInvalidOutputError(incident.ID, "", fmt.Errorf("prompt assembly: %w", err))
	}

	raw, err := g.llm.Complete(ctx, prompt, g.temperature, g.timeout)
	if err != nil {
		return nil, domain.NewModelUnavailableError(incident.ID, err)
	}

	report, err := parseReport(raw)
	if err != nil {
		return nil, domain.NewInvalidOutputError(incident.ID, raw, err)
	}

	report.IncidentID = incident.ID
	report.Analyst = incident.Analyst
	report.GeneratedAt = g.now().UTC()
	report.Model = g.model

	if err := report.Validate(); err != nil {
		return nil, domain.NewInvalidOutputError(incident.ID, raw, err)
	}

	return report, nil
}

func (g *Generator) assemblePrompt(incident domain.Incident, rc domain.RetrievedContext) (string, error) {
	data := promptData{
		Title:         incident.Title,
		Analyst:       incident.Analyst,
		IncidentID:    incident.ID,
		Severity:      incident.Severity,
		NotableData:   renderNotableData(incident),
		AuditTimeline: renderTimeline(incident.Timeline),
		ProcedureText: renderChunks(rc.ProcedureChunks, noProcedureText),
		TechniqueText: renderChunks(rc.TechniqueChunks, noTechniqueText),
	}

	var b strings.Builder
	if err := g.tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func renderNotableData(incident domain.Incident) string {
	if len(incident.NotableFields) == 0 && incident.SourceIP == "" && incident.DestIP == "" {
		return "No data"
	}
	payload := map[string]any{
		"status":           incident.Status,
		"src":              incident.SourceIP,
		"dest":             incident.DestIP,
		"mitre_techniques": incident.TechniqueIDs,
	}
	for k, v := range incident.NotableFields {
		payload[k] = v
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "No data"
	}
	return string(raw)
}

// renderTimeline formats audit entries chronologically, one action per
// line.
func renderTimeline(entries []domain.AuditEntry) string {
	if len(entries) == 0 {
		return "No actions logged"
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		line := fmt.Sprintf("[%s] %s: %s", e.At.UTC().Format(time.RFC3339), e.Actor, e.Action)
		if e.Comment != "" {
			line += " - " + e.Comment
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// renderChunks embeds retrieved chunk text verbatim, separated by
// blank lines.
func renderChunks(chunks []domain.ScoredChunk, placeholder string) string {
	if len(chunks) == 0 {
		return placeholder
	}
	parts := make([]string, 0, len(chunks))
	for _, sc := range chunks {
		parts = append(parts, sc.Chunk.Content)
	}
	return strings.Join(parts, "\n\n")
}

// reportWire is the decode target for the model's JSON. Pointer fields
// distinguish absent from zero-valued.
type reportWire struct {
	Scores *struct {
		Accuracy      *int `json:"accuracy"`
		Procedure     *int `json:"procedure"`
		Documentation *int `json:"documentation"`
	} `json:"scores"`
	MissedSteps        *[]string `json:"missed_steps"`
	EscalationRequired *bool     `json:"escalation_required"`
	Summary            *string   `json:"summary"`
	Recommendations    []string  `json:"recommendations"`
}

// parseReport decodes the model response strictly: every structured
// field must be present and within its value domain. There is no
// best-effort partial result.
func parseReport(raw string) (*domain.QAReport, error) {
	payload := extractJSONObject(raw)
	if payload == "" {
		return nil, fmt.Errorf("response contains no JSON object")
	}

	var wire reportWire
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}

	if wire.Scores == nil || wire.Scores.Accuracy == nil || wire.Scores.Procedure == nil || wire.Scores.Documentation == nil {
		return nil, fmt.Errorf("response is missing one or more scores")
	}
	if wire.MissedSteps == nil {
		return nil, fmt.Errorf("response is missing missed_steps")
	}
	if wire.EscalationRequired == nil {
		return nil, fmt.Errorf("response is missing escalation_required")
	}
	if wire.Summary == nil {
		return nil, fmt.Errorf("response is missing summary")
	}

	report := &domain.QAReport{
		Scores: domain.ReportScores{
			Accuracy:      *wire.Scores.Accuracy,
			Procedure:     *wire.Scores.Procedure,
			Documentation: *wire.Scores.Documentation,
		},
		MissedSteps:        *wire.MissedSteps,
		EscalationRequired: *wire.EscalationRequired,
		Summary:            *wire.Summary,
		Recommendations:    wire.Recommendations,
	}
	if report.MissedSteps == nil {
		report.MissedSteps = []string{}
	}
	if report.Recommendations == nil {
		report.Recommendations = []string{}
	}

	return report, nil
}

// extractJSONObject strips markdown fences and leading prose, then
// returns the outermost brace-delimited object.
func extractJSONObject(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
