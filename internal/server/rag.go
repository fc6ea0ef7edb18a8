package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/aiworker/internal/ingest"
	"github.com/mohammad-safakhou/aiworker/internal/rag"
	"github.com/mohammad-safakhou/aiworker/internal/ratelimit"
	"github.com/mohammad-safakhou/aiworker/internal/runtime"
	"github.com/mohammad-safakhou/aiworker/internal/store"
	"github.com/mohammad-safakhou/aiworker/models"
	"github.com/mohammad-safakhou/aiworker/provider"
	"github.com/mohammad-safakhou/aiworker/tools/vector_index/pinecone"
)

const defaultSessionID = "default_session"

type RagHandler struct {
	Pipeline  *rag.Pipeline
	Store     *store.Store
	Provider  provider.Provider
	Index     *pinecone.Index
	UploadDir string
	Logger    *log.Logger
}

func (h *RagHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.POST("/ask", h.ask)
	g.POST("/upload", h.upload)
	g.POST("/ingest", h.ingestHandler)
	g.GET("/insights", h.insights)
}

// Ask
//
//	@Summary		Answer a question with retrieval-augmented context
//	@Tags			rag
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		AskRequest	true	"Query payload"
//	@Success		200		{object}	rag.Answer
//	@Failure		400		{object}	HTTPError
//	@Failure		429		{object}	HTTPError
//	@Failure		500		{object}	HTTPError
//	@Router			/rag/ask [post]
func (h *RagHandler) ask(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = defaultSessionID
	}
	ans, err := h.Pipeline.Ask(c.Request().Context(), sessionID, req.Query)
	if err != nil {
		var rlErr *ratelimit.Error
		switch {
		case errors.Is(err, rag.ErrInvalidInput):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.As(err, &rlErr):
			return echo.NewHTTPError(http.StatusTooManyRequests, rlErr.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, ans)
}

// upload stores the raw file under a collision-proof name for later ingestion.
func (h *RagHandler) upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field required")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()

	if err := os.MkdirAll(h.UploadDir, 0o755); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	name := fmt.Sprintf("%d-%s-%s", time.Now().Unix(), uuid.NewString(), filepath.Base(fh.Filename))
	dst, err := os.Create(filepath.Join(h.UploadDir, name))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, UploadResponse{Filename: name})
}

// ingestHandler extracts an uploaded file's text, chunks and embeds it,
// upserts the vectors, records a Document row and stashes the text under the
// session's "document" context key so the next ask can see it.
func (h *RagHandler) ingestHandler(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "filename required")
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = defaultSessionID
	}
	path := filepath.Join(h.UploadDir, filepath.Base(req.Filename))
	text, err := ingest.ExtractText(path)
	if err != nil {
		if errors.Is(err, ingest.ErrUnsupportedType) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "no extractable text in file")
	}

	ctx := c.Request().Context()
	docID, err := h.Store.CreateDocument(ctx, "upload", req.Filename, path, text)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if summary, serr := h.Provider.Completion(ctx, "Summarize this document in a few sentences.", text); serr == nil {
		if _, ierr := h.Store.CreateInsight(ctx, docID, summary); ierr != nil {
			h.Logger.Printf("saving insight for %s failed: %v", docID, ierr)
		}
	} else {
		h.Logger.Printf("summarizing upload %s failed: %v", req.Filename, serr)
	}

	chunks := ingest.ChunkWords(text, ingest.DefaultChunkWords)
	n, err := h.embedAndUpsert(ctx, docID, req.Filename, chunks)
	if err != nil {
		// The document row and context entry still land; vectors are an
		// enrichment, not the system of record.
		h.Logger.Printf("embedding upload %s failed: %v", req.Filename, err)
	}

	cm, err := h.Store.LatestContext(ctx, sessionID)
	if err != nil {
		cm = store.NewContextMap()
	}
	cm.Set("document", text)
	if err := h.Store.SaveContext(ctx, sessionID, cm); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, IngestResponse{DocumentID: docID, Chunks: n})
}

func (h *RagHandler) embedAndUpsert(ctx context.Context, docID, source string, chunks []string) (int, error) {
	if h.Index == nil || len(chunks) == 0 {
		return 0, nil
	}
	embeddings, err := h.Provider.CreateEmbedding(ctx, chunks)
	if err != nil {
		return 0, err
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(embeddings))
	}
	vectors := make([]models.Vector, len(chunks))
	for i, chunk := range chunks {
		vectors[i] = models.Vector{
			DocID:    docID,
			ChunkID:  fmt.Sprintf("%d", i),
			Text:     chunk,
			Source:   source,
			Provider: "gemini",
			Values:   embeddings[i],
		}
	}
	if err := h.Index.Upsert(ctx, vectors); err != nil {
		return 0, err
	}
	return len(vectors), nil
}

// insights summarizes report volume per day and kind.
func (h *RagHandler) insights(c echo.Context) error {
	reports, err := h.Store.ListReportDates(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	counts := map[string]*InsightPoint{}
	var order []string
	for _, r := range reports {
		day := r.CreatedAt.Format("2006-01-02")
		key := day + "|" + r.Kind
		if p, ok := counts[key]; ok {
			p.Count++
			continue
		}
		counts[key] = &InsightPoint{Day: day, Kind: r.Kind, Count: 1}
		order = append(order, key)
	}
	out := make([]InsightPoint, 0, len(order))
	for _, key := range order {
		out = append(out, *counts[key])
	}
	return c.JSON(http.StatusOK, out)
}
