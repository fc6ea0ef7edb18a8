package server

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/aiworker/internal/runtime"
	"github.com/mohammad-safakhou/aiworker/internal/store"
)

type DashboardHandler struct {
	Store *store.Store
	Sched *Scheduler

	// DefaultLimit is the page size used when the request carries no limit.
	DefaultLimit int
}

func (h *DashboardHandler) pageSize() int {
	if h.DefaultLimit > 0 {
		return h.DefaultLimit
	}
	return 10
}

func (h *DashboardHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("/logs", h.logs)
	g.GET("/insights", h.insights)
	g.POST("/request-task", h.requestTask)
}

// logs merges runs and reports into one reverse-chronological feed,
// optionally filtered by job_type.
func (h *DashboardHandler) logs(c echo.Context) error {
	ctx := c.Request().Context()
	jobType := c.QueryParam("job_type")

	runs, err := h.Store.ListRuns(ctx, 100, 0)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	reports, err := h.Store.ListReports(ctx, jobType, "")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var entries []LogEntry
	for _, r := range runs {
		if jobType != "" && r.JobType != jobType {
			continue
		}
		entries = append(entries, LogEntry{
			Kind:      "run",
			JobType:   r.JobType,
			Status:    r.Status,
			Timestamp: r.StartedAt.Format(time.RFC3339),
		})
	}
	for _, r := range reports {
		entries = append(entries, LogEntry{
			Kind:      "report",
			JobType:   r.Kind,
			Content:   r.Content,
			Timestamp: r.CreatedAt.Format(time.RFC3339),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp > entries[j].Timestamp })
	limit, offset := pageParams(c, h.pageSize())
	if offset >= len(entries) {
		return c.JSON(http.StatusOK, []LogEntry{})
	}
	if end := offset + limit; end < len(entries) {
		entries = entries[offset:end]
	} else {
		entries = entries[offset:]
	}
	return c.JSON(http.StatusOK, entries)
}

// insights lists stored report content filtered by a q substring, paged.
func (h *DashboardHandler) insights(c echo.Context) error {
	q := c.QueryParam("q")
	reports, err := h.Store.ListReports(c.Request().Context(), "", q)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	limit, offset := pageParams(c, h.pageSize())
	if offset >= len(reports) {
		return c.JSON(http.StatusOK, []store.Report{})
	}
	end := offset + limit
	if end > len(reports) {
		end = len(reports)
	}
	return c.JSON(http.StatusOK, reports[offset:end])
}

// requestTask schedules an immediate one-off run of a report job.
func (h *DashboardHandler) requestTask(c echo.Context) error {
	taskType := c.QueryParam("task_type")
	var kind string
	switch taskType {
	case "news":
		kind = "news"
	case "stock":
		kind = "stock"
	case "trends":
		kind = "search"
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "task_type must be one of news, stock, trends")
	}
	job, ok := h.Sched.JobByKind(kind)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no job configured for "+taskType)
	}
	runID, err := h.Store.CreateRun(c.Request().Context(), job.Name, store.RunStatusScheduled)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	go h.Sched.Execute(context.Background(), job, runID)
	return c.JSON(http.StatusAccepted, TaskResponse{RunID: runID, Status: store.RunStatusScheduled})
}

func pageParams(c echo.Context, defLimit int) (limit, offset int) {
	limit = defLimit
	if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
		limit = n
	}
	if n, err := strconv.Atoi(c.QueryParam("offset")); err == nil && n > 0 {
		offset = n
	}
	return limit, offset
}
