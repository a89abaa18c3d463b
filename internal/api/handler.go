package api

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"bibmerge/internal"
	"bibmerge/internal/logger"
	"bibmerge/internal/storage"
)

const (
	maxPageLimit = 200
	maxOffset    = math.MaxInt32
)

var bookCollections = []string{
	internal.CollectionBooksCSV,
	internal.CollectionBooksMARC,
	internal.CollectionBooksONIX,
}

type Handler struct {
	DB        *storage.DB
	PageLimit int
	log       *logger.Logger
}

func NewHandler(db *storage.DB, pageLimit int, log *logger.Logger) *Handler {
	if pageLimit <= 0 {
		pageLimit = 20
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{DB: db, PageLimit: pageLimit, log: log}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/search", h.search)           // GET /api/search?q=&collection=&field=
	rg.GET("/filter", h.filter)           // GET /api/filter?collection=&missingFields=
	rg.GET("/:collection", h.list)        // GET /api/books_csv
	rg.POST("/:collection", h.create)     // POST /api/books_csv
	rg.GET("/:collection/:id", h.get)     // GET /api/books_csv/:id
	rg.PUT("/:collection/:id", h.update)  // PUT /api/books_csv/:id
	rg.DELETE("/:collection/:id", h.drop) // DELETE /api/books_csv/:id
}

// RegisterRunRoutes exposes the run ledger.
func (h *Handler) RegisterRunRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.runs)
}

func (h *Handler) list(c *gin.Context) {
	collection := c.Param("collection")
	limit := h.limit(c.Query("limit"))
	offset := h.offset(c, limit)

	total, err := h.DB.CountDocuments(collection)
	if err != nil {
		h.fail(c, err, "count failed")
		return
	}
	docs, err := h.DB.ListDocuments(collection, offset, limit)
	if err != nil {
		h.fail(c, err, "list failed")
		return
	}
	items, err := fields(docs)
	if err != nil {
		h.fail(c, err, "decode failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

func (h *Handler) get(c *gin.Context) {
	doc, err := h.DB.GetDocument(c.Param("collection"), c.Param("id"))
	if err != nil {
		h.fail(c, err, "get failed")
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	h.writeDocument(c, http.StatusOK, *doc)
}

func (h *Handler) create(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	doc, err := h.DB.InsertDocument(c.Param("collection"), body)
	if err != nil {
		h.fail(c, err, "insert failed")
		return
	}
	h.writeDocument(c, http.StatusCreated, doc)
}

func (h *Handler) update(c *gin.Context) {
	collection, id := c.Param("collection"), c.Param("id")
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	ok, err := h.DB.UpdateDocument(collection, id, body)
	if err != nil {
		h.fail(c, err, "update failed")
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	h.get(c)
}

func (h *Handler) drop(c *gin.Context) {
	ok, err := h.DB.DeleteDocument(c.Param("collection"), c.Param("id"))
	if err != nil {
		h.fail(c, err, "delete failed")
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// search runs a keyword search over one collection, or over every book
// collection when none is named, and pages the combined result.
func (h *Handler) search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		q = strings.TrimSpace(c.Query("keyword"))
	}
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	limit := h.limit(c.Query("limit"))
	offset := h.offset(c, limit)
	fieldsParam := splitList(c.Query("field"))

	collections := bookCollections
	if name := c.Query("collection"); name != "" {
		collections = []string{name}
	}

	// Collections are concatenated in order; the page window slides
	// across them using each collection's match count.
	items := []map[string]any{}
	total, skip := 0, offset
	for _, collection := range collections {
		docs, n, err := h.DB.SearchDocuments(collection, fieldsParam, q, skip, limit-len(items))
		if err != nil {
			h.fail(c, err, "search failed")
			return
		}
		total += n
		skip = max(skip-n, 0)
		found, err := fields(docs)
		if err != nil {
			h.fail(c, err, "decode failed")
			return
		}
		for _, f := range found {
			f["collection"] = collection
		}
		items = append(items, found...)
	}

	c.JSON(http.StatusOK, gin.H{
		"q":      q,
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

// filter lists documents missing any of the comma-separated missingFields.
func (h *Handler) filter(c *gin.Context) {
	collection := c.Query("collection")
	if collection == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection is required"})
		return
	}
	limit := h.limit(c.Query("limit"))
	offset := h.offset(c, limit)

	docs, total, err := h.DB.FilterMissing(collection, splitList(c.Query("missingFields")), offset, limit)
	if err != nil {
		h.fail(c, err, "filter failed")
		return
	}
	items, err := fields(docs)
	if err != nil {
		h.fail(c, err, "decode failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

func (h *Handler) runs(c *gin.Context) {
	rows, err := h.DB.ListRuns(h.limit(c.Query("limit")))
	if err != nil {
		h.fail(c, err, "runs failed")
		return
	}
	items := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		items = append(items, gin.H{
			"traceId":   r.TraceID,
			"family":    r.Family,
			"status":    r.Status,
			"error":     r.Error,
			"timings":   r.Timings,
			"counts":    r.Counts,
			"createdAt": r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) writeDocument(c *gin.Context, status int, doc storage.Document) {
	out, err := doc.Fields()
	if err != nil {
		h.fail(c, err, "decode failed")
		return
	}
	c.JSON(status, out)
}

// fail maps storage errors to client errors and logs everything else.
func (h *Handler) fail(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, storage.ErrUnknownCollection):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown collection"})
	case errors.Is(err, storage.ErrInvalidDocument), errors.Is(err, storage.ErrInvalidField):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error(msg, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

func (h *Handler) limit(s string) int {
	n := parseInt(s, h.PageLimit)
	if n <= 0 {
		return h.PageLimit
	}
	if n > maxPageLimit {
		return maxPageLimit
	}
	return n
}

// offset reads ?offset=, or derives it from a 1-based ?page=. The result
// is clamped to [0, maxOffset].
func (h *Handler) offset(c *gin.Context, limit int) int {
	if page := parseInt(c.Query("page"), 0); page > 0 {
		if page-1 > maxOffset/limit {
			return maxOffset
		}
		return (page - 1) * limit
	}
	if n := parseInt(c.Query("offset"), 0); n > 0 {
		return min(n, maxOffset)
	}
	return 0
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fields(docs []storage.Document) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		m, err := d.Fields()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
