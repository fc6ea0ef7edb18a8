package server

import (
	"net/http"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/aiworker/internal/runtime"
	"github.com/mohammad-safakhou/aiworker/internal/store"
)

// ReadHandler exposes the plain read APIs over stored runs, insights and
// reports, plus the scheduler's control endpoints.
type ReadHandler struct {
	Store *store.Store
	Sched *Scheduler
}

func (h *ReadHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("/runs", h.listRuns)
	g.GET("/insights", h.listInsights)
	g.GET("/reports", h.listReports)
	g.GET("/scheduler/jobs", h.listJobs)
	g.POST("/scheduler/run-now", h.runNow)
}

func (h *ReadHandler) listRuns(c echo.Context) error {
	limit, offset := pageParams(c, 50)
	runs, err := h.Store.ListRuns(c.Request().Context(), limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if runs == nil {
		runs = []store.Run{}
	}
	return c.JSON(http.StatusOK, runs)
}

func (h *ReadHandler) listInsights(c echo.Context) error {
	limit, offset := pageParams(c, 50)
	insights, err := h.Store.ListInsights(c.Request().Context(), limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if insights == nil {
		insights = []store.Insight{}
	}
	return c.JSON(http.StatusOK, insights)
}

func (h *ReadHandler) listReports(c echo.Context) error {
	reports, err := h.Store.ListReports(c.Request().Context(), c.QueryParam("kind"), c.QueryParam("q"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if reports == nil {
		reports = []store.Report{}
	}
	return c.JSON(http.StatusOK, reports)
}

func (h *ReadHandler) listJobs(c echo.Context) error {
	out := make([]JobInfo, 0, len(h.Sched.Jobs))
	for _, j := range h.Sched.Jobs {
		info := JobInfo{Name: j.Name, Kind: j.Kind, Cron: j.Cron}
		if expr, err := cronexpr.Parse(j.Cron); err == nil {
			info.Next = expr.Next(time.Now()).Format(time.RFC3339)
		}
		out = append(out, info)
	}
	return c.JSON(http.StatusOK, out)
}

// runNow fires one job by name, or every configured job when no name is given.
func (h *ReadHandler) runNow(c echo.Context) error {
	ctx := c.Request().Context()
	name := c.QueryParam("name")
	if name != "" {
		runID, err := h.Sched.RunNow(ctx, name)
		if err != nil {
			if err == ErrUnknownJob {
				return echo.NewHTTPError(http.StatusNotFound, err.Error())
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusAccepted, []TaskResponse{{RunID: runID, Status: store.RunStatusRunning}})
	}
	out := make([]TaskResponse, 0, len(h.Sched.Jobs))
	for _, j := range h.Sched.Jobs {
		runID, err := h.Sched.RunNow(ctx, j.Name)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		out = append(out, TaskResponse{RunID: runID, Status: store.RunStatusRunning})
	}
	return c.JSON(http.StatusAccepted, out)
}
