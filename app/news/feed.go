package news

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/lysyi3m/news-comb/app/fetcher"
	"github.com/lysyi3m/news-comb/app/source"
	"github.com/mmcdole/gofeed"
)

// feedStrategy parses syndication feeds with gofeed and rejects documents
// whose detected type differs from the declared one.
func feedStrategy(expected string) strategy {
	return func(desc source.Descriptor, payload *fetcher.RawPayload) ([]entry, error) {
		// gofeed.Parser keeps decoder state between calls.
		feed, err := gofeed.NewParser().Parse(bytes.NewReader(payload.Body))
		if err != nil {
			return nil, &ParseError{
				Kind:     ErrKindMalformed,
				SourceID: desc.ID,
				Format:   string(desc.Format),
				Cause:    err,
			}
		}

		if feed.FeedType != expected {
			return nil, &ParseError{
				Kind:     ErrKindUnsupportedFormat,
				SourceID: desc.ID,
				Format:   string(desc.Format),
				Cause:    fmt.Errorf("document is %s, expected %s", feed.FeedType, expected),
			}
		}

		entries := make([]entry, 0, len(feed.Items))
		for _, item := range feed.Items {
			if item == nil {
				continue
			}

			link := item.Link
			if link == "" && len(item.Links) > 0 {
				link = item.Links[0]
			}

			e := entry{
				title:   item.Title,
				link:    link,
				body:    cmp.Or(item.Content, item.Description),
				authors: extractAuthors(item),
			}
			if item.PublishedParsed != nil {
				e.published = item.PublishedParsed
			} else if item.UpdatedParsed != nil {
				e.published = item.UpdatedParsed
			}

			entries = append(entries, e)
		}

		return entries, nil
	}
}

func extractAuthors(item *gofeed.Item) []string {
	var authors []string

	if len(item.Authors) > 0 {
		for _, author := range item.Authors {
			if author != nil {
				if formatted := formatAuthor(author.Name, author.Email); formatted != "" {
					authors = append(authors, formatted)
				}
			}
		}
	} else if item.Author != nil {
		if formatted := formatAuthor(item.Author.Name, item.Author.Email); formatted != "" {
			authors = append(authors, formatted)
		}
	}

	return authors
}

func formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	switch {
	case name != "" && email != "":
		return fmt.Sprintf("%s (%s)", email, name)
	case name != "":
		return name
	default:
		return email
	}
}
