package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vantagesec/socqa/internal/domain"
)

// AttackConfig holds settings for the MITRE ATT&CK STIX source.
type AttackConfig struct {
	// BundleURL points at the enterprise-attack STIX bundle JSON.
	BundleURL string
	Timeout   time.Duration
}

// AttackSource downloads the enterprise ATT&CK STIX bundle and renders
// techniques, tactics, and mitigations into raw documents for the
// attack store.
type AttackSource struct {
	bundleURL  string
	httpClient *http.Client
}

func NewAttackSource(cfg AttackConfig) *AttackSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &AttackSource{
		bundleURL:  cfg.BundleURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type stixBundle struct {
	Objects []stixObject `json:"objects"`
}

type stixObject struct {
	Type               string              `json:"type"`
	Name               string              `json:"name"`
	Description        string              `json:"description"`
	Revoked            bool                `json:"revoked"`
	Deprecated         bool                `json:"x_mitre_deprecated"`
	ExternalReferences []externalReference `json:"external_references"`
	KillChainPhases    []killChainPhase    `json:"kill_chain_phases"`
}

type externalReference struct {
	SourceName string `json:"source_name"`
	ExternalID string `json:"external_id"`
	URL        string `json:"url"`
}

type killChainPhase struct {
	KillChainName string `json:"kill_chain_name"`
	PhaseName     string `json:"phase_name"`
}

// FetchDocuments downloads and renders the bundle. Revoked and
// deprecated objects are dropped so stale techniques never reach the
// review context.
func (s *AttackSource) FetchDocuments(ctx context.Context) ([]domain.RawDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.bundleURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("STIX bundle fetch returned status %d", resp.StatusCode)
	}

	var bundle stixBundle
	if err := json.NewDecoder(resp.Body).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("failed to parse STIX bundle: %w", err)
	}

	var docs []domain.RawDocument
	for _, obj := range bundle.Objects {
		if obj.Revoked || obj.Deprecated {
			continue
		}

		var doc domain.RawDocument
		switch obj.Type {
		case "attack-pattern":
			doc = renderTechnique(obj)
		case "x-mitre-tactic":
			doc = renderTactic(obj)
		case "course-of-action":
			doc = renderMitigation(obj)
		default:
			continue
		}
		if doc.SourceID == "" || doc.Body == "" {
			continue
		}
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("STIX bundle contained no usable ATT&CK objects")
	}
	return docs, nil
}

func renderTechnique(obj stixObject) domain.RawDocument {
	id, url := attackReference(obj)

	var tactics []string
	for _, phase := range obj.KillChainPhases {
		if phase.KillChainName == "mitre-attack" {
			tactics = append(tactics, phase.PhaseName)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Technique: %s (%s)\n", obj.Name, id)
	if len(tactics) > 0 {
		fmt.Fprintf(&b, "Tactics: %s\n", strings.Join(tactics, ", "))
	}
	b.WriteString("\n")
	b.WriteString(obj.Description)

	return domain.RawDocument{
		SourceID: id,
		Title:    fmt.Sprintf("%s %s", id, obj.Name),
		Body:     b.String(),
		URL:      url,
		Source:   "mitre-attack",
	}
}

func renderTactic(obj stixObject) domain.RawDocument {
	id, url := attackReference(obj)
	return domain.RawDocument{
		SourceID: id,
		Title:    fmt.Sprintf("%s %s", id, obj.Name),
		Body:     fmt.Sprintf("Tactic: %s (%s)\n\n%s", obj.Name, id, obj.Description),
		URL:      url,
		Source:   "mitre-attack",
	}
}

func renderMitigation(obj stixObject) domain.RawDocument {
	id, url := attackReference(obj)
	return domain.RawDocument{
		SourceID: id,
		Title:    fmt.Sprintf("%s %s", id, obj.Name),
		Body:     fmt.Sprintf("Mitigation: %s (%s)\n\n%s", obj.Name, id, obj.Description),
		URL:      url,
		Source:   "mitre-attack",
	}
}

// attackReference returns the ATT&CK id (Txxxx, TAxxxx, Mxxxx) and the
// attack.mitre.org URL from the object's external references.
func attackReference(obj stixObject) (string, string) {
	for _, ref := range obj.ExternalReferences {
		if ref.SourceName == "mitre-attack" {
			return ref.ExternalID, ref.URL
		}
	}
	return "", ""
}
