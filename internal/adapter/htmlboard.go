package adapter

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// HTMLBoardConfig describes how to walk one server-rendered careers site.
// Everything is a CSS selector because that is all these boards give us.
type HTMLBoardConfig struct {
	// BaseURL is the listing page the walk starts from.
	BaseURL string

	// LinkSelector matches anchors pointing at individual postings.
	LinkSelector string

	// TitleSelector optionally narrows the title text within a matched
	// anchor. Empty means the anchor's own text, first line.
	TitleSelector string

	// LocationSelector optionally locates the posting's location within a
	// matched anchor. Empty means the listing carries no location.
	LocationSelector string

	// ContentSelector locates the posting body on a detail page. The first
	// match wins; when nothing matches the whole page body is used.
	ContentSelector string

	// NextSelector matches the pagination link to the next listing page.
	// Empty means the listing is a single page.
	NextSelector string

	// MaxPages caps the pagination walk.
	MaxPages int
}

// HTMLBoardAdapter reads a classic server-rendered careers page: the listing
// is walked with colly following an optional pagination selector, and detail
// pages are plain HTML parsed with goquery. No JSON API to lean on, so the
// selectors in the config carry all the site-specific knowledge.
type HTMLBoardAdapter struct {
	cfg         HTMLBoardConfig
	client      *client
	timeout     time.Duration
	minInterval time.Duration
}

// NewHTMLBoardAdapter creates an adapter for one selector-described board.
func NewHTMLBoardAdapter(cfg HTMLBoardConfig, timeout, minInterval time.Duration) *HTMLBoardAdapter {
	if cfg.LinkSelector == "" {
		cfg.LinkSelector = "a[href]"
	}
	if cfg.ContentSelector == "" {
		cfg.ContentSelector = "main, article"
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	return &HTMLBoardAdapter{
		cfg:         cfg,
		client:      newClient("text/html", timeout, minInterval),
		timeout:     timeout,
		minInterval: minInterval,
	}
}

func (a *HTMLBoardAdapter) ListJobs(ctx context.Context, filters TitleFilters) ([]Posting, error) {
	c := colly.NewCollector(colly.UserAgent(userAgent))
	c.SetRequestTimeout(a.timeout)
	_ = c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: a.minInterval, Parallelism: 1})

	var (
		mu       sync.Mutex
		postings []Posting
		walkErr  error
		pages    = 1
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnHTML(a.cfg.LinkSelector, func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" || samepage(link, e.Request.URL) {
			return
		}
		id := postingSlug(link)
		if id == "" {
			return
		}

		title := anchorTitle(e, a.cfg.TitleSelector)
		if title == "" || !filters.Matches(title) {
			return
		}

		location := ""
		if a.cfg.LocationSelector != "" {
			location = collapseText(e.ChildText(a.cfg.LocationSelector))
		}

		mu.Lock()
		postings = append(postings, Posting{
			ExternalID: id,
			Title:      title,
			Location:   location,
			URL:        link,
		})
		mu.Unlock()
	})

	if a.cfg.NextSelector != "" {
		c.OnHTML(a.cfg.NextSelector, func(e *colly.HTMLElement) {
			mu.Lock()
			if pages >= a.cfg.MaxPages {
				mu.Unlock()
				return
			}
			pages++
			mu.Unlock()
			_ = e.Request.Visit(e.Attr("href"))
		})
	}

	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		if walkErr != nil {
			return
		}
		status := 0
		var header http.Header
		var body []byte
		if r != nil {
			status = r.StatusCode
			body = r.Body
			if r.Headers != nil {
				header = *r.Headers
			}
		}
		if cErr := classify(status, header, body); cErr != nil {
			walkErr = cErr
			return
		}
		walkErr = &UnavailableError{Reason: "listing fetch failed", Err: err}
	})

	visitErr := c.Visit(a.cfg.BaseURL)
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	// A failed page fails the whole listing. Returning the pages that did
	// load would expire every posting on the pages that never loaded.
	if walkErr != nil {
		return nil, walkErr
	}
	if visitErr != nil {
		return nil, &UnavailableError{Reason: "listing fetch failed", Err: visitErr}
	}
	return mergePostings(postings), nil
}

func (a *HTMLBoardAdapter) FetchRaw(ctx context.Context, rawURL string) ([]byte, error) {
	return a.client.Get(ctx, rawURL)
}

func (a *HTMLBoardAdapter) ParseRaw(raw []byte) (*Parsed, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &FormatError{Reason: "posting page is not parseable HTML", Err: err}
	}

	sel := doc.Find(a.cfg.ContentSelector).First()
	if sel.Length() == 0 {
		sel = doc.Find("body")
	}

	text := textFromSelection(sel)
	if text == "" {
		return nil, &FormatError{Reason: "posting page has no text content"}
	}
	return &Parsed{
		Description:  text,
		Requirements: splitRequirements(text),
	}, nil
}

// anchorTitle reads the posting title out of a listing anchor. Card-style
// anchors wrap title and metadata together, so without a selector the first
// line of the anchor's text is taken as the title.
func anchorTitle(e *colly.HTMLElement, selector string) string {
	if selector != "" {
		if t := collapseText(e.ChildText(selector)); t != "" {
			return firstLine(t)
		}
	}
	return firstLine(textFromSelection(e.DOM))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// postingSlug turns a posting URL into a stable external id: the URL path
// with slashes trimmed. Query and fragment are ignored so tracking params
// don't mint new ids.
func postingSlug(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.Trim(u.Path, "/")
}

// samepage guards against listing anchors that point back at the page being
// walked (nav links, "all jobs" tabs).
func samepage(link string, page *url.URL) bool {
	u, err := url.Parse(link)
	if err != nil {
		return true
	}
	return u.Host == page.Host && strings.Trim(u.Path, "/") == strings.Trim(page.Path, "/")
}
