// Package httpapi exposes an Engine over HTTP: bulk document ingest and
// search, under /v1/lfas.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rprado/lfas"
)

// ErrorResponse is the JSON body returned for non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Handlers binds an Engine to HTTP handlers.
type Handlers struct {
	engine *lfas.Engine
}

// NewHandlers constructs Handlers around an already-open Engine.
func NewHandlers(engine *lfas.Engine) *Handlers {
	return &Handlers{engine: engine}
}

// RegisterRoutes registers the lfas endpoints under the given group.
func RegisterRoutes(group *gin.RouterGroup, h *Handlers) {
	lfasGroup := group.Group("/lfas")
	lfasGroup.POST("/documents", h.HandleAddDocuments)
	lfasGroup.POST("/search", h.HandleSearch)
	lfasGroup.POST("/flush", h.HandleFlush)
}

func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

// addDocumentsRequest is the body of POST /v1/lfas/documents: each entry
// maps canonical field names (rua, numero, municipio, estado, cep,
// bairro, tipo_logradouro, complemento, nome) to raw text.
type addDocumentsRequest struct {
	Records []map[string]string `json:"records"`
}

type addDocumentsResponse struct {
	DocIDs []uint32 `json:"doc_ids"`
}

// HandleAddDocuments handles POST /v1/lfas/documents.
//
// Response:
//
//	200 OK: addDocumentsResponse
//	400 Bad Request: malformed body
//	500 Internal Server Error: storage failure
func (h *Handlers) HandleAddDocuments(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAddDocuments")

	var req addDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_BODY",
		})
		return
	}

	records := make([]lfas.Record, len(req.Records))
	for i, byName := range req.Records {
		records[i] = lfas.NewRecordFromNames(byName)
	}

	ids, err := h.engine.AddDocumentsBulk(c.Request.Context(), records)
	if err != nil {
		logger.Error("AddDocumentsBulk failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "INDEX_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, addDocumentsResponse{DocIDs: ids})
}

type searchRequest struct {
	Query     map[string]string `json:"query"`
	TopK      int                `json:"top_k"`
	BlockingK int                `json:"blocking_k"`
}

type searchResponse struct {
	Hits []lfas.Hit `json:"hits"`
}

// HandleSearch handles POST /v1/lfas/search.
//
// Response:
//
//	200 OK: searchResponse
//	400 Bad Request: malformed body or invalid query
func (h *Handlers) HandleSearch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSearch")

	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_BODY",
		})
		return
	}
	topK := req.TopK
	if topK == 0 {
		topK = 10
	}
	blockingK := req.BlockingK
	if blockingK == 0 {
		blockingK = 1000
	}

	hits, err := h.engine.SearchComplex(c.Request.Context(), req.Query, topK, blockingK)
	if err != nil {
		logger.Warn("Search failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "SEARCH_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, searchResponse{Hits: hits})
}

// HandleFlush handles POST /v1/lfas/flush, forcing buffered writes to
// storage outside of the batch-size auto-flush threshold.
func (h *Handlers) HandleFlush(c *gin.Context) {
	if err := h.engine.Flush(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "FLUSH_FAILED",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// Close shuts the underlying engine down, flushing and syncing storage.
func (h *Handlers) Close(ctx context.Context) error {
	return h.engine.Close(ctx)
}
