package controller

import (
	"net/http"

	"judgebox/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Endpoint is one line of the index page.
type Endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{http.MethodPost, "/submissions", "Create a submission"},
	{http.MethodGet, "/submissions/:token", "Get a submission"},
	{http.MethodGet, "/submissions/:token/stream", "Follow a submission over websocket"},
	{http.MethodGet, "/languages", "List languages"},
	{http.MethodGet, "/languages/:id", "Get a language"},
	{http.MethodGet, "/statuses", "List statuses"},
	{http.MethodGet, "/health", "Liveness probe"},
}

// Register mounts the judge API on r. submit, when non-nil, guards submission creation only.
func Register(r gin.IRouter, submissions *SubmissionController, catalogs *CatalogController, submit gin.HandlerFunc) {
	r.GET("/", index)
	r.GET("/health", health)

	createChain := []gin.HandlerFunc{submissions.Create}
	if submit != nil {
		createChain = append([]gin.HandlerFunc{submit}, createChain...)
	}
	r.POST("/submissions", createChain...)
	r.GET("/submissions/:token", submissions.Get)
	r.GET("/submissions/:token/stream", submissions.Stream)

	r.GET("/languages", catalogs.Languages)
	r.GET("/languages/:id", catalogs.Language)
	r.GET("/statuses", catalogs.Statuses)
}

func index(c *gin.Context) {
	response.OK(c, gin.H{"name": "judgebox", "endpoints": endpoints})
}

func health(c *gin.Context) {
	response.OK(c, gin.H{"status": "ok"})
}
