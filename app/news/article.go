package news

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/lysyi3m/news-comb/app/fetcher"
	"github.com/lysyi3m/news-comb/app/source"
)

// parseArticlePage extracts the main content of a single article page.
func parseArticlePage(desc source.Descriptor, payload *fetcher.RawPayload) ([]entry, error) {
	pageURL, _ := url.Parse(payload.URL)

	article, err := readability.FromReader(bytes.NewReader(payload.Body), pageURL)
	if err != nil {
		return nil, &ParseError{
			Kind:     ErrKindMalformed,
			SourceID: desc.ID,
			Format:   string(desc.Format),
			Cause:    err,
		}
	}

	if strings.TrimSpace(article.TextContent) == "" {
		return nil, &ParseError{Kind: ErrKindEmpty, SourceID: desc.ID, Format: string(desc.Format)}
	}

	e := entry{
		title:     article.Title,
		link:      payload.URL,
		body:      article.TextContent,
		published: article.PublishedTime,
	}
	if byline := strings.TrimSpace(article.Byline); byline != "" {
		e.authors = []string{byline}
	}

	return []entry{e}, nil
}
