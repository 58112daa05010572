package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/boostgram/boostgram/database"
)

// filterFromQuery builds a list filter from the common query parameters:
// status, provider_id, search, from, to (RFC 3339 or YYYY-MM-DD), limit,
// offset. Unparseable values are ignored rather than rejected.
func filterFromQuery(c *gin.Context) database.ListFilter {
	filter := database.ListFilter{
		Status:     c.Query("status"),
		ProviderID: c.Query("provider_id"),
		Search:     c.Query("search"),
	}
	if raw := c.Query("from"); raw != "" {
		filter.From = parseTime(raw)
	}
	if raw := c.Query("to"); raw != "" {
		filter.To = parseTime(raw)
	}
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Offset = n
		}
	}
	return filter
}

func parseTime(raw string) time.Time {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t
	}
	return time.Time{}
}
