package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// parsePagination reads page and limit as given. Missing or malformed values
// come back as zero; the store clamps them into range.
func parsePagination(c *gin.Context) (int64, int64) {
	return queryInt(c, "page"), queryInt(c, "limit")
}

func queryInt(c *gin.Context, key string) int64 {
	v, err := strconv.ParseInt(c.Query(key), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
