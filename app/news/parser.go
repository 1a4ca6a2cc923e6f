package news

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/lysyi3m/news-comb/app/fetcher"
	"github.com/lysyi3m/news-comb/app/source"
)

type strategy func(desc source.Descriptor, payload *fetcher.RawPayload) ([]entry, error)

// Parser turns a raw payload into normalized articles. It holds no
// per-call state and is safe for concurrent use.
type Parser struct {
	strategies map[source.Format]strategy
}

func NewParser() *Parser {
	return &Parser{
		strategies: map[source.Format]strategy{
			source.FormatRSS:      feedStrategy("rss"),
			source.FormatAtom:     feedStrategy("atom"),
			source.FormatJSONFeed: feedStrategy("json"),
			source.FormatHTML:     parseHTMLListing,
			source.FormatArticle:  parseArticlePage,
		},
	}
}

func (p *Parser) Run(desc source.Descriptor, payload *fetcher.RawPayload) ([]Article, error) {
	parse, ok := p.strategies[desc.Format]
	if !ok {
		return nil, &ParseError{
			Kind:     ErrKindUnsupportedFormat,
			SourceID: desc.ID,
			Format:   string(desc.Format),
			Cause:    fmt.Errorf("no parser registered for format %q", desc.Format),
		}
	}

	if len(bytes.TrimSpace(payload.Body)) == 0 {
		return nil, &ParseError{Kind: ErrKindEmpty, SourceID: desc.ID, Format: string(desc.Format)}
	}

	entries, err := parse(desc, payload)
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(payload.URL)
	fetchedAt := payload.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	articles := make([]Article, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		article, ok := normalize(e, base, fetchedAt)
		if !ok {
			continue
		}
		if seen[article.Fingerprint] {
			continue
		}
		seen[article.Fingerprint] = true

		article.SourceID = desc.ID
		article.Category = desc.Category
		articles = append(articles, article)
	}

	if len(articles) == 0 {
		return nil, &ParseError{Kind: ErrKindEmpty, SourceID: desc.ID, Format: string(desc.Format)}
	}

	if dropped := len(entries) - len(articles); dropped > 0 {
		slog.Debug("Dropped unusable entries", "source", desc.ID, "dropped", dropped)
	}

	return articles, nil
}

func normalize(e entry, base *url.URL, fetchedAt time.Time) (Article, bool) {
	title := collapse(e.title)
	body := collapse(stripHTML(e.body))
	if title == "" && body == "" {
		return Article{}, false
	}

	article := Article{
		Title:   title,
		Body:    body,
		URL:     resolveURL(base, e.link),
		Authors: e.authors,
	}

	if e.published != nil && !e.published.IsZero() {
		article.PublishedAt = e.published.UTC()
	} else {
		article.PublishedAt = fetchedAt.UTC()
	}

	article.Fingerprint = Fingerprint(article.Title, article.URL, article.Body)
	article.ContentHash = ContentHash(article)

	return article, true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}

func resolveURL(base *url.URL, link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}

	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	if base == nil || ref.IsAbs() {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
