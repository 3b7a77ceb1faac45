package adapter

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// blockTags are elements whose boundaries become newlines in the extracted
// text, so paragraphs and list items keep their line structure.
var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"header": true, "footer": true, "blockquote": true, "pre": true,
	"ul": true, "ol": true, "li": true, "dl": true, "dt": true, "dd": true,
	"table": true, "tr": true, "figure": true, "figcaption": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// htmlToText flattens an HTML fragment into plain text: scripts and styles
// removed, block boundaries as newlines, entities decoded by the parser,
// whitespace collapsed.
func htmlToText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapseText(fragment)
	}
	return textFromSelection(doc.Selection)
}

// textFromSelection extracts plain text from an already-parsed region.
// Mutates the selection (removes non-content elements).
func textFromSelection(sel *goquery.Selection) string {
	sel.Find("script, style, noscript, template, iframe, svg").Remove()

	var b strings.Builder
	for _, n := range sel.Nodes {
		writeNodeText(&b, n)
	}
	return collapseText(b.String())
}

func writeNodeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
	case html.ElementNode:
		if n.Data == "br" {
			b.WriteByte('\n')
			return
		}
		if blockTags[n.Data] {
			b.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNodeText(b, c)
	}
	if n.Type == html.ElementNode && blockTags[n.Data] {
		b.WriteByte('\n')
	}
}

// collapseText squeezes whitespace runs within lines to single spaces and
// runs of blank lines to one, keeping paragraph breaks readable.
func collapseText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
				blank = true
			}
			continue
		}
		out = append(out, line)
		blank = false
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

// requirementHeadings mark the start of a requirements section. Later
// requirement-like headings extend the section rather than ending it.
var requirementHeadings = []string{
	"requirements",
	"qualifications",
	"minimum qualifications",
	"preferred qualifications",
	"what you'll need",
	"what you will need",
	"what we're looking for",
	"what we are looking for",
	"what we look for",
	"who you are",
	"about you",
	"skills",
	"nice to have",
	"bonus points",
}

// sectionHeadings end a requirements section without starting one.
var sectionHeadings = []string{
	"responsibilities",
	"what you'll do",
	"what you will do",
	"the role",
	"about the role",
	"about the team",
	"about us",
	"benefits",
	"perks",
	"compensation",
	"salary",
	"how to apply",
	"interview process",
	"equal opportunity",
	"why join",
}

// matchesHeading reports whether a line reads as one of the given section
// headings. After text extraction a heading is a short line of its own, so a
// prefix match on the trimmed line is enough.
func matchesHeading(line string, headings []string) bool {
	h := strings.ToLower(strings.TrimSpace(line))
	h = strings.TrimSuffix(h, ":")
	h = strings.TrimSpace(h)
	if h == "" || len(h) > 64 {
		return false
	}
	for _, k := range headings {
		if strings.HasPrefix(h, k) {
			return true
		}
	}
	return false
}

// splitRequirements pulls the requirements section out of normalized posting
// text. Returns "" when no requirement-like heading is present; the caller
// keeps the full text as the description either way.
func splitRequirements(text string) string {
	var req []string
	inSection := false
	for _, line := range strings.Split(text, "\n") {
		switch {
		case matchesHeading(line, requirementHeadings):
			inSection = true
		case inSection && matchesHeading(line, sectionHeadings):
			inSection = false
		case inSection:
			req = append(req, line)
		}
	}
	return strings.TrimSpace(strings.Join(req, "\n"))
}
