package splunk

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vantagesec/socqa/internal/domain"
)

const exportPath = "search/jobs/export"

var techniquePattern = regexp.MustCompile(`T\d+(?:\.\d+)?`)

// SourceConfig holds Splunk search API settings.
type SourceConfig struct {
	// APIURL is the management API base, e.g. https://splunk:8089.
	APIURL string
	// Token is a bearer token with search capability.
	Token string
	// Namespace optionally scopes the export endpoint to an app
	// context so ES macros resolve, e.g.
	// servicesNS/nobody/SplunkEnterpriseSecuritySuite.
	Namespace string
	SSLVerify bool
	Timeout   time.Duration
}

// Source fetches closed notable events from the Splunk Enterprise
// Security search API via the streaming export endpoint.
type Source struct {
	exportURL  string
	token      string
	httpClient *http.Client
}

func NewSource(cfg SourceConfig) *Source {
	base := strings.TrimRight(cfg.APIURL, "/")
	endpoint := base + "/services/" + exportPath
	if ns := strings.Trim(cfg.Namespace, "/ "); ns != "" {
		endpoint = base + "/" + ns + "/" + exportPath
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	client := &http.Client{Timeout: timeout}
	if !cfg.SSLVerify {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Source{
		exportURL:  endpoint,
		token:      cfg.Token,
		httpClient: client,
	}
}

// FetchClosedIncidents runs the notable query for [earliest, latest)
// and normalizes result rows into incidents, including each incident's
// review timeline. A timeline fetch failure is logged and leaves the
// timeline empty rather than failing the whole window.
func (s *Source) FetchClosedIncidents(ctx context.Context, earliest, latest time.Time) ([]domain.Incident, error) {
	rows, err := s.export(ctx, buildNotableQuery(earliest, latest))
	if err != nil {
		return nil, fmt.Errorf("notable export: %w", err)
	}

	incidents := make([]domain.Incident, 0, len(rows))
	for _, row := range rows {
		incident := normalizeIncident(row)
		if incident.ID == "" {
			log.Printf("splunk: skipping notable row with no usable id")
			continue
		}

		timeline, err := s.fetchTimeline(ctx, incident.ID)
		if err != nil {
			log.Printf("splunk: timeline fetch for %s failed: %v", incident.ID, err)
		} else {
			incident.Timeline = timeline
		}

		incidents = append(incidents, incident)
	}

	return incidents, nil
}

func (s *Source) fetchTimeline(ctx context.Context, ruleID string) ([]domain.AuditEntry, error) {
	rows, err := s.export(ctx, buildAuditQuery(ruleID))
	if err != nil {
		return nil, err
	}

	entries := make([]domain.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entry := domain.AuditEntry{
			Actor:   fieldString(row, "reviewer"),
			Action:  fieldString(row, "status_label"),
			Comment: fieldString(row, "comment"),
			At:      fieldEpoch(row, "time"),
		}
		if entry.Actor == "" && entry.Action == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// export posts a search to the export endpoint and collects the
// streamed result rows. Export emits one JSON object per line; lines
// that are not parseable (keepalives, previews) are skipped.
func (s *Source) export(ctx context.Context, search string) ([]map[string]any, error) {
	form := url.Values{
		"search":      {search},
		"output_mode": {"json"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.exportURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("export returned status %d", resp.StatusCode)
	}

	var rows []map[string]any
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var envelope struct {
			Result  map[string]any   `json:"result"`
			Results []map[string]any `json:"results"`
		}
		if err := json.Unmarshal([]byte(line), &envelope); err != nil {
			continue
		}
		if envelope.Result != nil {
			rows = append(rows, envelope.Result)
		}
		rows = append(rows, envelope.Results...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read export stream: %w", err)
	}

	return rows, nil
}

// normalizeIncident maps one notable row onto the domain model. Field
// names follow the ES notable schema after the macro pipeline's
// renames.
func normalizeIncident(row map[string]any) domain.Incident {
	incident := domain.Incident{
		ID:       firstField(row, "ticket_id", "event_id", "rule_id", "_cd"),
		Title:    firstField(row, "alert_title", "source", "rule_name"),
		Analyst:  firstField(row, "analyst", "owner", "user"),
		Status:   firstField(row, "disposition_label", "status_label"),
		Severity: firstField(row, "severity", "urgency"),
		SourceIP: firstField(row, "src", "src_ip"),
		DestIP:   firstField(row, "dest", "dest_ip"),
		ClosedAt: fieldEpoch(row, "closed_time"),
	}
	if incident.Title == "" {
		incident.Title = "Notable Event"
	}
	if incident.Analyst == "" {
		incident.Analyst = "unknown"
	}
	if incident.Status == "" {
		incident.Status = "closed"
	}

	incident.NotableFields = flattenFields(row)
	incident.TechniqueIDs = extractTechniques(row)
	return incident
}

// extractTechniques pulls MITRE technique ids out of the
// annotation_mitre_* fields, deduplicated and sorted.
func extractTechniques(row map[string]any) []string {
	seen := map[string]struct{}{}
	for key, value := range row {
		if !strings.HasPrefix(key, "annotation_mitre_") && !strings.HasPrefix(key, "annotations_mitre_") {
			continue
		}
		for _, text := range fieldStrings(value) {
			for _, match := range techniquePattern.FindAllString(text, -1) {
				seen[match] = struct{}{}
			}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	techniques := make([]string, 0, len(seen))
	for t := range seen {
		techniques = append(techniques, t)
	}
	sort.Strings(techniques)
	return techniques
}

// flattenFields renders every row value as a string so the raw notable
// data can be embedded in the review prompt. Internal fields are
// dropped.
func flattenFields(row map[string]any) map[string]string {
	fields := make(map[string]string, len(row))
	for key, value := range row {
		if strings.HasPrefix(key, "_") {
			continue
		}
		parts := fieldStrings(value)
		if len(parts) == 0 {
			continue
		}
		fields[key] = strings.Join(parts, "; ")
	}
	return fields
}

func firstField(row map[string]any, keys ...string) string {
	for _, key := range keys {
		if v := fieldString(row, key); v != "" {
			return v
		}
	}
	return ""
}

func fieldString(row map[string]any, key string) string {
	parts := fieldStrings(row[key])
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// fieldStrings renders an export value as strings. Splunk multivalue
// fields arrive as JSON arrays.
func fieldStrings(value any) []string {
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	case float64:
		return []string{strconv.FormatFloat(v, 'f', -1, 64)}
	case bool:
		return []string{strconv.FormatBool(v)}
	case []any:
		var out []string
		for _, item := range v {
			out = append(out, fieldStrings(item)...)
		}
		return out
	default:
		return nil
	}
}

func fieldEpoch(row map[string]any, key string) time.Time {
	raw := fieldString(row, key)
	if raw == "" {
		return time.Time{}
	}
	epoch, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
