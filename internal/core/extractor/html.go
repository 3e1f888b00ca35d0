package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/markdave123-py/botwise/internal/core"
)

// noise is removed before reading page text.
const noise = "script, style, noscript, nav, footer, header, iframe, svg, form, template"

// blocks get a trailing newline so their text does not run together.
const blocks = "p, div, br, li, h1, h2, h3, h4, h5, h6, tr, section, article, blockquote, pre, table, dd, dt"

type HTMLPage struct {
	URL   string
	Title string
	Text  string
	// Links are raw href values in document order, read before noise removal.
	Links []string
}

// Unit turns the page into a single extraction unit.
func (p *HTMLPage) Unit(fallbackLabel string) core.Unit {
	label := p.Title
	if label == "" {
		label = fallbackLabel
	}
	return core.Unit{Text: p.Text, PageIndex: 1, SourceLabel: label}
}

// ParseHTML strips markup from a page and collects its links.
func ParseHTML(pageURL string, body []byte) (*HTMLPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	page := &HTMLPage{URL: pageURL}
	page.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			if href = strings.TrimSpace(href); href != "" {
				page.Links = append(page.Links, href)
			}
		}
	})

	doc.Find(noise).Remove()
	doc.Find(blocks).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	page.Text = normalizeLines(root.Text())
	return page, nil
}
