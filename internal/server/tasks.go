package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/aiworker/internal/rag"
	"github.com/mohammad-safakhou/aiworker/internal/runtime"
	"github.com/mohammad-safakhou/aiworker/internal/store"
)

// TasksHandler serves on-demand ingest runs: each request logs a Run plus a
// Task row and pulls documents from one external source into the store.
type TasksHandler struct {
	Store  *store.Store
	News   rag.Fetcher
	Stocks rag.Fetcher
	Search rag.Fetcher
	Logger *log.Logger
}

type IngestRunRequest struct {
	Source string            `json:"source"`
	Query  string            `json:"query"`
	Params map[string]string `json:"params,omitempty"`
}

type IngestRunResponse struct {
	TaskID string `json:"task_id"`
}

func (h *TasksHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.POST("/run", h.ingestRun)
}

func (h *TasksHandler) ingestRun(c echo.Context) error {
	var req IngestRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	fetcher, limit, ok := h.sourceFetcher(req.Source)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "source must be one of newsapi, alphavantage, google_cse")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}

	ctx := c.Request().Context()
	runID, err := h.Store.CreateRun(ctx, "ingest", store.RunStatusRunning)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	payload, _ := json.Marshal(map[string]interface{}{"source": req.Source, "query": req.Query, "params": req.Params})
	taskID, err := h.Store.CreateTask(ctx, runID, "ingest", string(payload))
	if err != nil {
		_ = h.Store.FinishRun(ctx, runID, store.RunStatusFailed, strPtr(err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := h.ingest(ctx, req.Source, req.Query, fetcher, limit); err != nil {
		h.Logger.Printf("ingest task %s failed: %v", taskID, err)
		_ = h.Store.SetTaskStatus(ctx, taskID, "failed", strPtr(err.Error()))
		_ = h.Store.FinishRun(ctx, runID, store.RunStatusFailed, strPtr(err.Error()))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	_ = h.Store.SetTaskStatus(ctx, taskID, "completed", nil)
	_ = h.Store.FinishRun(ctx, runID, store.RunStatusCompleted, nil)

	return c.JSON(http.StatusOK, IngestRunResponse{TaskID: taskID})
}

// ingest fetches from the source and stores one Document per item.
func (h *TasksHandler) ingest(ctx context.Context, source, query string, fetcher rag.Fetcher, limit int) error {
	items, err := fetcher.Fetch(ctx, query, limit)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", source, err)
	}
	for _, it := range items {
		if it.Text == "" {
			continue
		}
		if _, err := h.Store.CreateDocument(ctx, source, query, it.Source, it.Text); err != nil {
			return fmt.Errorf("save %s document: %w", source, err)
		}
	}
	return nil
}

func (h *TasksHandler) sourceFetcher(source string) (rag.Fetcher, int, bool) {
	switch source {
	case "newsapi":
		return h.News, 10, true
	case "alphavantage":
		return h.Stocks, 5, true
	case "google_cse":
		return h.Search, 5, true
	}
	return nil, 0, false
}
