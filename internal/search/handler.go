package search

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRoutes attaches the search API to a gin router.
func SetupRoutes(r *gin.Engine, engine *Engine) {
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "healthy",
				"service": "podsearch",
			})
		})

		api.GET("/search", HandleSearchGet(engine))
		api.POST("/search", HandleSearchPost(engine))
	}
}

// CORSMiddleware answers browser preflights directly. OPTIONS never reaches
// the engine, so a cold process serves preflights without restoring the index.
// allowOrigin is the site's public origin; empty allows any origin.
func CORSMiddleware(allowOrigin string) gin.HandlerFunc {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowOrigin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// HandleSearchGet serves GET /api/search with query parameters.
func HandleSearchGet(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := FromQueryParams(c.Request.URL.Query())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		runSearch(c, engine, req)
	}
}

// HandleSearchPost serves POST /api/search with a JSON body.
func HandleSearchPost(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		req, err := FromJSON(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		runSearch(c, engine, req)
	}
}

func runSearch(c *gin.Context, engine *Engine, req SearchRequest) {
	resp, err := engine.Search(c.Request.Context(), req)
	if err != nil {
		// A failed restore is a service problem, not a client one. The
		// index may simply not exist yet for a new site.
		slog.Error("Search unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search index unavailable"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// invokeError mirrors the HTTP error shape for direct invocations.
type invokeError struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
}

// InvokeHandler returns a Lambda-style handler: raw JSON in, raw JSON out.
// Errors are encoded into the payload so callers see the same shapes the
// HTTP route produces.
func InvokeHandler(engine *Engine) func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		req, err := FromInvokePayload(payload)
		if err != nil {
			return json.Marshal(invokeError{StatusCode: http.StatusBadRequest, Error: err.Error()})
		}
		resp, err := engine.Search(ctx, req)
		if err != nil {
			slog.Error("Search unavailable", "error", err)
			return json.Marshal(invokeError{StatusCode: http.StatusServiceUnavailable, Error: "search index unavailable"})
		}
		return json.Marshal(resp)
	}
}
