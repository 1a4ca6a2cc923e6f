package api

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/news-comb/app/database"
	"github.com/lysyi3m/news-comb/app/news"
	"github.com/lysyi3m/news-comb/app/source"
)

const feedItemLimit = 50

func NewHandler(articles ArticleReader, bookkeeping BookkeepingReader, registry *source.Registry,
	baseURL, version string, storeTimeout time.Duration) *Handler {
	return &Handler{
		articles:     articles,
		bookkeeping:  bookkeeping,
		registry:     registry,
		generator:    news.NewGenerator(),
		baseURL:      strings.TrimRight(baseURL, "/"),
		version:      version,
		storeTimeout: cmp.Or(storeTimeout, 5*time.Second),
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	ctx, cancel := h.storeContext(c)
	defer cancel()

	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"sources":   h.registry.Count(),
	}

	count, err := h.articles.CountArticles(ctx, database.ArticleFilter{})
	if err != nil {
		slog.Error("Database error", "operation", "count_articles", "error", err)
		health["status"] = "unavailable"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	health["status"] = "ok"
	health["articles"] = count
	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListArticles(c *gin.Context) {
	filter, err := parseArticleFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	articles, err := h.articles.ListArticles(ctx, filter)
	if err != nil {
		h.storeFailure(c, "list_articles", err)
		return
	}

	total, err := h.articles.CountArticles(ctx, filter)
	if err != nil {
		h.storeFailure(c, "count_articles", err)
		return
	}

	response := make([]articleResponse, 0, len(articles))
	for _, article := range articles {
		response = append(response, toArticleResponse(article))
	}

	c.JSON(http.StatusOK, gin.H{
		"articles": response,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (h *Handler) GetArticle(c *gin.Context) {
	fingerprint := c.Param("fingerprint")
	if fingerprint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing fingerprint parameter"})
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	article, err := h.articles.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		h.storeFailure(c, "get_article", err)
		return
	}
	if article == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return
	}

	c.JSON(http.StatusOK, toArticleResponse(*article))
}

func (h *Handler) ListSources(c *gin.Context) {
	ctx, cancel := h.storeContext(c)
	defer cancel()

	records, err := h.bookkeeping.ListBookkeeping(ctx)
	if err != nil {
		h.storeFailure(c, "list_bookkeeping", err)
		return
	}

	byID := make(map[string]source.Bookkeeping, len(records))
	for _, record := range records {
		byID[record.SourceID] = record
	}

	descs := h.registry.All()
	if category := c.Query("category"); category != "" {
		descs = h.registry.ByCategory(strings.ToLower(category))
	}

	policy := h.registry.Policy()
	sources := make([]sourceResponse, 0, len(descs))
	for _, desc := range descs {
		item := sourceResponse{
			ID:       desc.ID,
			URL:      desc.URL,
			Format:   string(desc.Format),
			Category: desc.Category,
			Weight:   desc.Weight,
			Enabled:  desc.Enabled(),
			Cadence:  desc.Cadence().String(),
		}

		failures := desc.ConsecutiveFailures
		if record, ok := byID[desc.ID]; ok {
			item.LastAttemptAt = record.LastAttemptAt
			item.LastSuccessAt = record.LastSuccessAt
			item.LastStatus = record.LastStatus
			item.LastError = record.LastError
			failures = record.ConsecutiveFailures
		}

		item.ConsecutiveFailures = failures
		item.Quarantined = policy.Quarantined(failures)
		item.EffectiveCadence = policy.EffectiveCadence(desc.Cadence(), failures).String()
		sources = append(sources, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"total":   len(sources),
	})
}

func (h *Handler) GetFeed(c *gin.Context) {
	filter := database.ArticleFilter{
		SourceID: c.Query("source"),
		Category: strings.ToLower(c.Query("category")),
		Limit:    feedItemLimit,
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	articles, err := h.articles.ListArticles(ctx, filter)
	if err != nil {
		slog.Error("Database error", "operation", "list_articles", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	title := "News Comb"
	if filter.Category != "" {
		title = fmt.Sprintf("News Comb: %s", filter.Category)
	}
	if filter.SourceID != "" {
		title = fmt.Sprintf("News Comb: %s", filter.SourceID)
	}

	selfLink := h.baseURL + c.Request.URL.RequestURI()
	rss, err := h.generator.Run(news.Channel{
		Title:       title,
		Link:        h.baseURL,
		Description: "Latest deduplicated articles",
		SelfLink:    selfLink,
		Generator:   fmt.Sprintf("News-Comb/%s", h.version),
	}, articles)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(articles)))
	c.String(http.StatusOK, rss)
}

func (h *Handler) GetStats(c *gin.Context) {
	ctx, cancel := h.storeContext(c)
	defer cancel()

	stats, err := h.articles.GetStats(ctx)
	if err != nil {
		h.storeFailure(c, "get_stats", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_articles":      stats.TotalArticles,
		"by_source":           stats.BySource,
		"by_category":         stats.ByCategory,
		"latest_published_at": stats.LatestPublishedAt,
		"sources":             h.registry.Count(),
	})
}

func (h *Handler) storeContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.storeTimeout)
}

func (h *Handler) storeFailure(c *gin.Context, operation string, err error) {
	slog.Error("Database error", "operation", operation, "error", err)

	if errors.Is(err, database.ErrUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store unavailable"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
}

func parseArticleFilter(c *gin.Context) (database.ArticleFilter, error) {
	filter := database.ArticleFilter{
		SourceID: c.Query("source"),
		Category: strings.ToLower(c.Query("category")),
		Limit:    database.DefaultListLimit,
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return filter, fmt.Errorf("invalid limit %q", raw)
		}
		filter.Limit = min(limit, database.MaxListLimit)
	}

	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, fmt.Errorf("invalid offset %q", raw)
		}
		filter.Offset = offset
	}

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid since %q: expected RFC 3339 timestamp", raw)
		}
		filter.Since = &since
	}

	return filter, nil
}
