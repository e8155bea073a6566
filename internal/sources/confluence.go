package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vantagesec/socqa/internal/domain"
)

const confluencePageLimit = 50

// ConfluenceConfig holds Confluence REST API settings.
type ConfluenceConfig struct {
	BaseURL  string
	Username string
	Token    string
	SpaceKey string
	Timeout  time.Duration
}

// ConfluenceSource fetches SOC procedure pages from a Confluence space
// and normalizes them into raw documents for the procedures store.
type ConfluenceSource struct {
	baseURL    string
	username   string
	token      string
	spaceKey   string
	httpClient *http.Client
}

func NewConfluenceSource(cfg ConfluenceConfig) *ConfluenceSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &ConfluenceSource{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		token:      cfg.Token,
		spaceKey:   cfg.SpaceKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type confluencePage struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

type confluenceListing struct {
	Results []confluencePage `json:"results"`
	Size    int              `json:"size"`
	Limit   int              `json:"limit"`
}

// FetchDocuments pages through the space's content and returns one
// document per page, with storage-format HTML flattened to text.
func (s *ConfluenceSource) FetchDocuments(ctx context.Context) ([]domain.RawDocument, error) {
	var docs []domain.RawDocument

	for start := 0; ; start += confluencePageLimit {
		listing, err := s.listPages(ctx, start)
		if err != nil {
			return nil, err
		}

		for _, page := range listing.Results {
			docs = append(docs, domain.RawDocument{
				SourceID: page.ID,
				Title:    page.Title,
				Body:     flattenStorageHTML(page.Body.Storage.Value),
				URL:      s.baseURL + page.Links.WebUI,
				Source:   "confluence",
			})
		}

		if len(listing.Results) < confluencePageLimit {
			break
		}
	}

	return docs, nil
}

func (s *ConfluenceSource) listPages(ctx context.Context, start int) (*confluenceListing, error) {
	query := url.Values{
		"type":     {"page"},
		"spaceKey": {s.spaceKey},
		"expand":   {"body.storage"},
		"limit":    {strconv.Itoa(confluencePageLimit)},
		"start":    {strconv.Itoa(start)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/rest/api/content?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(s.username, s.token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("confluence returned status %d", resp.StatusCode)
	}

	var listing confluenceListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("failed to parse content listing: %w", err)
	}
	return &listing, nil
}

var (
	blockEndPattern = regexp.MustCompile(`(?i)</(p|div|li|ul|ol|h[1-6]|tr|table|blockquote)>|<br\s*/?>`)
	tagPattern      = regexp.MustCompile(`<[^>]*>`)
	blankPattern    = regexp.MustCompile(`\n{3,}`)
)

// flattenStorageHTML converts Confluence storage-format markup into
// plain text, keeping block boundaries as newlines so chunking can
// back off at sensible places.
func flattenStorageHTML(markup string) string {
	text := blockEndPattern.ReplaceAllString(markup, "\n")
	text = tagPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = blankPattern.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
