package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/railzwaylabs/aquaduct/pkg/db/pagination"
)

// Success bodies are always {"data": ...}; lists add page_info when the
// endpoint is cursor paginated.

func respondData(c *gin.Context, data any) {
	respond(c, http.StatusOK, data)
}

func respondCreated(c *gin.Context, data any) {
	respond(c, http.StatusCreated, data)
}

func respondList(c *gin.Context, data any, pageInfo *pagination.PageInfo) {
	body := gin.H{"data": data}
	if pageInfo != nil {
		body["page_info"] = pageInfo
	}
	c.JSON(http.StatusOK, body)
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"data": data})
}
