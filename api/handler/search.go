package handler

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/basket/models"
)

// maxQueryLen bounds the search term in runes.
const maxQueryLen = 100

// Products returns a handler for GET /api/products?search=<q>.
// The body is the aggregate result map and nothing else.
func Products(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		query, err := parseQuery(c.Query("search"))
		if err != nil {
			respondError(c, http.StatusBadRequest, err)
			return
		}

		report := svc.Search(c.Request.Context(), query)
		c.JSON(http.StatusOK, report.Results)
	}
}

// Search returns a handler for GET /api/v1/search?q=<q>.
// Unlike Products it says per source whether the list is empty because the
// shop had nothing or because the scrape failed.
func Search(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		query, err := parseQuery(c.Query("q"))
		if err != nil {
			respondError(c, http.StatusBadRequest, err)
			return
		}

		c.JSON(http.StatusOK, svc.Search(c.Request.Context(), query))
	}
}

// Sources returns a handler for GET /api/v1/sources.
func Sources(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		adapters := svc.Sources()
		out := make([]models.SourceInfo, 0, len(adapters))
		for _, a := range adapters {
			out = append(out, models.SourceInfo{
				ID:         string(a.ID),
				Name:       a.Name,
				ExampleURL: a.URL("milch"),
			})
		}
		c.JSON(http.StatusOK, out)
	}
}

func parseQuery(raw string) (string, *models.ScrapeError) {
	q := strings.TrimSpace(raw)
	switch {
	case q == "":
		return "", models.NewScrapeError(models.ErrCodeInvalidInput, "search query is required", nil)
	case utf8.RuneCountInString(q) > maxQueryLen:
		return "", models.NewScrapeError(models.ErrCodeInvalidInput,
			fmt.Sprintf("search query exceeds %d characters", maxQueryLen), nil)
	}
	return q, nil
}

// respondError writes a ScrapeError as the standard error body.
func respondError(c *gin.Context, status int, err *models.ScrapeError) {
	c.JSON(status, models.ErrorResponse{
		Error:   http.StatusText(status),
		Details: err.ToDetail(),
	})
}
