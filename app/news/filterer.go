package news

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/lysyi3m/news-comb/app/source"
)

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run returns the articles that pass every filter and the number dropped.
func (f *Filterer) Run(articles []Article, filters []source.Filter) ([]Article, int) {
	if len(filters) == 0 {
		return articles, 0
	}

	kept := make([]Article, 0, len(articles))
	for _, article := range articles {
		if excluded, reason := f.applyFilters(article, filters); excluded {
			slog.Debug("Article filtered", "source", article.SourceID, "title", article.Title, "reason", reason)
			continue
		}
		kept = append(kept, article)
	}

	return kept, len(articles) - len(kept)
}

func (f *Filterer) applyFilters(article Article, filters []source.Filter) (bool, string) {
	for _, filter := range filters {
		value := f.getFieldValue(article, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return true, fmt.Sprintf("excluded by %s filter: contains '%s'", filter.Field, exclude)
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true, fmt.Sprintf("excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes)
			}
		}
	}

	return false, ""
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (f *Filterer) getFieldValue(article Article, field string) string {
	switch field {
	case "title":
		return article.Title
	case "body":
		return article.Body
	case "url":
		return article.URL
	case "authors":
		return strings.Join(article.Authors, " ")
	default:
		return ""
	}
}
