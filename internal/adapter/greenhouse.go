package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	stdhtml "html"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const greenhouseAPIBase = "https://boards-api.greenhouse.io/v1/boards"

// GreenhouseAdapter reads a Greenhouse-hosted board through its public JSON
// API. Listing hits the board's jobs endpoint; raw content is the job-detail
// JSON, whose content field carries the posting body as HTML-escaped HTML.
type GreenhouseAdapter struct {
	board  string
	apiURL string
	client *client
}

// NewGreenhouseAdapter creates an adapter for one board token.
func NewGreenhouseAdapter(board string, timeout, minInterval time.Duration) *GreenhouseAdapter {
	return &GreenhouseAdapter{
		board:  board,
		apiURL: greenhouseAPIBase + "/" + board,
		client: newClient("application/json", timeout, minInterval),
	}
}

type greenhouseList struct {
	Jobs []greenhouseListJob `json:"jobs"`
}

type greenhouseListJob struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	AbsoluteURL string `json:"absolute_url"`
	Location    struct {
		Name string `json:"name"`
	} `json:"location"`
	Offices []struct {
		Name string `json:"name"`
	} `json:"offices"`
}

type greenhouseDetail struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (a *GreenhouseAdapter) ListJobs(ctx context.Context, filters TitleFilters) ([]Posting, error) {
	body, err := a.client.Get(ctx, a.apiURL+"/jobs")
	if err != nil {
		return nil, err
	}

	var list greenhouseList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &FormatError{Reason: "listing is not greenhouse jobs JSON", Err: err}
	}

	postings := make([]Posting, 0, len(list.Jobs))
	for _, job := range list.Jobs {
		if !filters.Matches(job.Title) {
			continue
		}
		postings = append(postings, Posting{
			ExternalID: strconv.FormatInt(job.ID, 10),
			Title:      strings.TrimSpace(job.Title),
			Location:   greenhouseLocation(job),
			URL:        job.AbsoluteURL,
		})
	}
	return mergePostings(postings), nil
}

func (a *GreenhouseAdapter) FetchRaw(ctx context.Context, rawURL string) ([]byte, error) {
	id, err := greenhouseJobID(rawURL)
	if err != nil {
		return nil, err
	}
	return a.client.Get(ctx, a.apiURL+"/jobs/"+id)
}

func (a *GreenhouseAdapter) ParseRaw(raw []byte) (*Parsed, error) {
	var detail greenhouseDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, &FormatError{Reason: "raw content is not greenhouse job JSON", Err: err}
	}
	if detail.ID == 0 && detail.Content == "" {
		return nil, &FormatError{Reason: "greenhouse job JSON has no id or content"}
	}

	text := htmlToText(stdhtml.UnescapeString(detail.Content))
	return &Parsed{
		Description:  text,
		Requirements: splitRequirements(text),
	}, nil
}

func greenhouseLocation(job greenhouseListJob) string {
	if loc := strings.TrimSpace(job.Location.Name); loc != "" {
		return loc
	}
	names := make([]string, 0, len(job.Offices))
	for _, office := range job.Offices {
		if name := strings.TrimSpace(office.Name); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, "; ")
}

// greenhouseJobID derives the numeric job id from a posting URL. Hosted
// boards put it in the last path segment, embedded boards in the gh_jid
// query parameter.
func greenhouseJobID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &FormatError{Reason: "invalid posting url", Err: err}
	}
	if id := u.Query().Get("gh_jid"); id != "" {
		return id, nil
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	if _, err := strconv.ParseUint(last, 10, 64); err == nil {
		return last, nil
	}
	return "", &FormatError{Reason: fmt.Sprintf("no greenhouse job id in url %q", rawURL)}
}
