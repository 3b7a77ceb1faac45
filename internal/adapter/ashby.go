package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const ashbyBase = "https://jobs.ashbyhq.com"

// AshbyAdapter reads an Ashby-hosted board. Ashby pages are a JS app whose
// server-rendered HTML embeds the board state as a window.__appData script,
// so both listing and parsing work on that JSON rather than the DOM.
type AshbyAdapter struct {
	org     string
	baseURL string
	client  *client
}

// NewAshbyAdapter creates an adapter for one Ashby organization.
func NewAshbyAdapter(org string, timeout, minInterval time.Duration) *AshbyAdapter {
	return &AshbyAdapter{
		org:     org,
		baseURL: ashbyBase,
		client:  newClient("text/html", timeout, minInterval),
	}
}

type ashbyAppData struct {
	JobBoard *struct {
		JobPostings []struct {
			ID           string `json:"id"`
			Title        string `json:"title"`
			LocationName string `json:"locationName"`
		} `json:"jobPostings"`
	} `json:"jobBoard"`
	Posting *struct {
		ID              string `json:"id"`
		Title           string `json:"title"`
		DescriptionHTML string `json:"descriptionHtml"`
	} `json:"posting"`
}

func (a *AshbyAdapter) ListJobs(ctx context.Context, filters TitleFilters) ([]Posting, error) {
	body, err := a.client.Get(ctx, a.baseURL+"/"+a.org)
	if err != nil {
		return nil, err
	}

	data, err := ashbyExtractAppData(body)
	if err != nil {
		return nil, err
	}
	if data.JobBoard == nil {
		return nil, &FormatError{Reason: "ashby app data has no job board"}
	}

	postings := make([]Posting, 0, len(data.JobBoard.JobPostings))
	for _, p := range data.JobBoard.JobPostings {
		if !filters.Matches(p.Title) {
			continue
		}
		postings = append(postings, Posting{
			ExternalID: p.ID,
			Title:      strings.TrimSpace(p.Title),
			Location:   strings.TrimSpace(p.LocationName),
			URL:        a.baseURL + "/" + a.org + "/" + p.ID,
		})
	}
	return mergePostings(postings), nil
}

func (a *AshbyAdapter) FetchRaw(ctx context.Context, rawURL string) ([]byte, error) {
	return a.client.Get(ctx, rawURL)
}

func (a *AshbyAdapter) ParseRaw(raw []byte) (*Parsed, error) {
	data, err := ashbyExtractAppData(raw)
	if err != nil {
		return nil, err
	}
	if data.Posting == nil {
		return nil, &FormatError{Reason: "ashby app data has no posting"}
	}

	text := htmlToText(data.Posting.DescriptionHTML)
	return &Parsed{
		Description:  text,
		Requirements: splitRequirements(text),
	}, nil
}

// ashbyExtractAppData locates the window.__appData script in a board or
// posting page and decodes the JSON object assigned to it.
func ashbyExtractAppData(page []byte) (*ashbyAppData, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, &FormatError{Reason: "page is not parseable HTML", Err: err}
	}

	var payload string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(text, "window.__appData") {
			return true
		}
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start >= 0 && end > start {
			payload = text[start : end+1]
		}
		return false
	})
	if payload == "" {
		return nil, &FormatError{Reason: "no window.__appData script in page"}
	}

	var data ashbyAppData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, &FormatError{Reason: "window.__appData is not valid JSON", Err: err}
	}
	return &data, nil
}
