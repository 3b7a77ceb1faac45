package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const leverAPIBase = "https://api.lever.co/v0/postings"

// LeverAdapter reads a Lever-hosted board through the public postings API.
// Raw content is the single-posting JSON, which splits the body into a
// description, titled list blocks, and a closing section.
type LeverAdapter struct {
	site   string
	apiURL string
	client *client
}

// NewLeverAdapter creates an adapter for one Lever site.
func NewLeverAdapter(site string, timeout, minInterval time.Duration) *LeverAdapter {
	return &LeverAdapter{
		site:   site,
		apiURL: leverAPIBase + "/" + site,
		client: newClient("application/json", timeout, minInterval),
	}
}

type leverPosting struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	HostedURL  string `json:"hostedUrl"`
	Categories struct {
		Location     string   `json:"location"`
		AllLocations []string `json:"allLocations"`
	} `json:"categories"`
	Description string `json:"description"`
	Lists       []struct {
		Text    string `json:"text"`
		Content string `json:"content"`
	} `json:"lists"`
	Additional string `json:"additional"`
}

func (a *LeverAdapter) ListJobs(ctx context.Context, filters TitleFilters) ([]Posting, error) {
	body, err := a.client.Get(ctx, a.apiURL+"?mode=json")
	if err != nil {
		return nil, err
	}

	var postings []leverPosting
	if err := json.Unmarshal(body, &postings); err != nil {
		return nil, &FormatError{Reason: "listing is not lever postings JSON", Err: err}
	}

	out := make([]Posting, 0, len(postings))
	for _, p := range postings {
		if !filters.Matches(p.Text) {
			continue
		}
		out = append(out, Posting{
			ExternalID: p.ID,
			Title:      strings.TrimSpace(p.Text),
			Location:   leverLocation(p),
			URL:        p.HostedURL,
		})
	}
	return mergePostings(out), nil
}

func (a *LeverAdapter) FetchRaw(ctx context.Context, rawURL string) ([]byte, error) {
	id, err := leverPostingID(rawURL)
	if err != nil {
		return nil, err
	}
	return a.client.Get(ctx, a.apiURL+"/"+id)
}

func (a *LeverAdapter) ParseRaw(raw []byte) (*Parsed, error) {
	var p leverPosting
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &FormatError{Reason: "raw content is not lever posting JSON", Err: err}
	}
	if p.ID == "" && p.Description == "" && len(p.Lists) == 0 {
		return nil, &FormatError{Reason: "lever posting JSON has no id or body"}
	}

	var desc strings.Builder
	desc.WriteString(htmlToText(p.Description))

	var reqs []string
	for _, list := range p.Lists {
		heading := strings.TrimSpace(list.Text)
		text := htmlToText("<ul>" + list.Content + "</ul>")
		if text == "" {
			continue
		}
		if desc.Len() > 0 {
			desc.WriteString("\n\n")
		}
		if heading != "" {
			desc.WriteString(heading + "\n")
		}
		desc.WriteString(text)

		if matchesHeading(heading, requirementHeadings) {
			reqs = append(reqs, text)
		}
	}

	if extra := htmlToText(p.Additional); extra != "" {
		if desc.Len() > 0 {
			desc.WriteString("\n\n")
		}
		desc.WriteString(extra)
	}

	return &Parsed{
		Description:  desc.String(),
		Requirements: strings.Join(reqs, "\n"),
	}, nil
}

func leverLocation(p leverPosting) string {
	if len(p.Categories.AllLocations) > 0 {
		return strings.Join(p.Categories.AllLocations, "; ")
	}
	return strings.TrimSpace(p.Categories.Location)
}

// leverPostingID derives the posting id (a UUID) from a hosted posting URL's
// last path segment.
func leverPostingID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &FormatError{Reason: "invalid posting url", Err: err}
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	if last == "" {
		return "", &FormatError{Reason: fmt.Sprintf("no lever posting id in url %q", rawURL)}
	}
	return last, nil
}
