package domain

import (
	"sort"
	"time"
)

// AuditEntry is a single analyst action recorded against an incident.
type AuditEntry struct {
	Actor   string
	Action  string
	At      time.Time
	Comment string
}

// Incident is a closed security event record under QA review.
// It is immutable once fetched; the pipeline owns it for one pass.
type Incident struct {
	ID            string
	Title         string
	Analyst       string
	Severity      string
	Status        string
	SourceIP      string
	DestIP        string
	TechniqueIDs  []string
	NotableFields map[string]string
	ClosedAt      time.Time
	Timeline      []AuditEntry
}

// FreeText joins the notable fields into a single string for
// similarity queries when no technique ids were extracted. Fields are
// joined in key order so the same incident always embeds the same
// query text.
func (i Incident) FreeText() string {
	keys := make([]string, 0, len(i.NotableFields))
	for k := range i.NotableFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	text := i.Title
	for _, k := range keys {
		if v := i.NotableFields[k]; v != "" {
			text += " " + v
		}
	}
	return text
}
