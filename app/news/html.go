package news

import (
	"bytes"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/lysyi3m/news-comb/app/fetcher"
	"github.com/lysyi3m/news-comb/app/source"
)

// parseHTMLListing scrapes a listing page. With an item selector each
// match is one entry and the other selectors apply inside it; without
// one, title and link matches are paired by position.
func parseHTMLListing(desc source.Descriptor, payload *fetcher.RawPayload) ([]entry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload.Body))
	if err != nil {
		return nil, &ParseError{
			Kind:     ErrKindMalformed,
			SourceID: desc.ID,
			Format:   string(desc.Format),
			Cause:    err,
		}
	}

	sel := desc.Selectors
	if sel.Item != "" {
		var entries []entry
		doc.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
			entries = append(entries, entry{
				title:     item.Find(sel.Title).First().Text(),
				link:      extractHref(item.Find(sel.Link).First()),
				body:      findText(item, sel.Summary),
				published: findTime(item, sel.Published),
			})
		})
		return entries, nil
	}

	titles := doc.Find(sel.Title)
	links := doc.Find(sel.Link)
	var summaries, dates *goquery.Selection
	if sel.Summary != "" {
		summaries = doc.Find(sel.Summary)
	}
	if sel.Published != "" {
		dates = doc.Find(sel.Published)
	}

	entries := make([]entry, 0, titles.Length())
	titles.Each(func(i int, title *goquery.Selection) {
		if i >= links.Length() {
			return
		}

		e := entry{
			title: title.Text(),
			link:  extractHref(links.Eq(i)),
		}
		if summaries != nil && i < summaries.Length() {
			e.body = summaries.Eq(i).Text()
		}
		if dates != nil && i < dates.Length() {
			e.published = parseTime(dates.Eq(i))
		}
		entries = append(entries, e)
	})

	return entries, nil
}

func extractHref(s *goquery.Selection) string {
	if href, ok := s.Attr("href"); ok {
		return href
	}
	return s.Find("a[href]").First().AttrOr("href", "")
}

func findText(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return s.Find(selector).First().Text()
}

func findTime(s *goquery.Selection, selector string) *time.Time {
	if selector == "" {
		return nil
	}
	return parseTime(s.Find(selector).First())
}

func parseTime(s *goquery.Selection) *time.Time {
	value := s.AttrOr("datetime", "")
	if value == "" {
		value = strings.TrimSpace(s.Text())
	}
	if value == "" {
		return nil
	}

	parsed, err := dateparse.ParseAny(value)
	if err != nil {
		return nil
	}
	return &parsed
}
