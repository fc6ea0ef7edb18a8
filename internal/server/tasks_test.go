package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/aiworker/internal/store"
	"github.com/mohammad-safakhou/aiworker/models"
)

func TestIngestRunStoresDocuments(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO runs (job_type, status) VALUES ($1,$2) RETURNING id`)).
		WithArgs("ingest", store.RunStatusRunning).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("run-1"))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO tasks (run_id, kind, payload, status) VALUES ($1,$2,$3,'pending') RETURNING id`)).
		WithArgs("run-1", "ingest", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("task-1"))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO documents (source, title, url, content) VALUES ($1,$2,$3,$4) RETURNING id`)).
		WithArgs("newsapi", "ai chips", "https://example.com/a", "chip startup raises funding").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("doc-1"))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO documents (source, title, url, content) VALUES ($1,$2,$3,$4) RETURNING id`)).
		WithArgs("newsapi", "ai chips", "https://example.com/b", "fab capacity expands").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("doc-2"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE tasks SET status=$2, detail=$3 WHERE id=$1`)).
		WithArgs("task-1", "completed", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE runs SET status=$2, error=$3, finished_at=NOW() WHERE id=$1`)).
		WithArgs("run-1", store.RunStatusCompleted, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	h := &TasksHandler{
		Store: &store.Store{DB: db},
		News: staticFetcher{items: []models.Item{
			{Text: "chip startup raises funding", Source: "https://example.com/a"},
			{Text: "fab capacity expands", Source: "https://example.com/b"},
		}},
		Logger: log.New(nullWriter{}, "", 0),
	}

	req := httptest.NewRequest(http.MethodPost, "/ingest/run", strings.NewReader(`{"source":"newsapi","query":"ai chips"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.ingestRun(e.NewContext(req, rec)); err != nil {
		t.Fatalf("ingestRun: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp IngestRunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TaskID != "task-1" {
		t.Fatalf("task id = %q", resp.TaskID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIngestRunUnknownSource(t *testing.T) {
	e := echo.New()
	h := &TasksHandler{Logger: log.New(nullWriter{}, "", 0)}

	req := httptest.NewRequest(http.MethodPost, "/ingest/run", strings.NewReader(`{"source":"rss","query":"ai"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	err := h.ingestRun(e.NewContext(req, rec))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

type failingFetcher struct{}

func (failingFetcher) Fetch(_ context.Context, _ string, _ int) ([]models.Item, error) {
	return nil, errors.New("upstream unavailable")
}

func TestIngestRunMarksFailureOnFetchError(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO runs (job_type, status) VALUES ($1,$2) RETURNING id`)).
		WithArgs("ingest", store.RunStatusRunning).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("run-1"))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO tasks (run_id, kind, payload, status) VALUES ($1,$2,$3,'pending') RETURNING id`)).
		WithArgs("run-1", "ingest", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("task-1"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE tasks SET status=$2, detail=$3 WHERE id=$1`)).
		WithArgs("task-1", "failed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE runs SET status=$2, error=$3, finished_at=NOW() WHERE id=$1`)).
		WithArgs("run-1", store.RunStatusFailed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	h := &TasksHandler{
		Store:  &store.Store{DB: db},
		Stocks: failingFetcher{},
		Logger: log.New(nullWriter{}, "", 0),
	}

	req := httptest.NewRequest(http.MethodPost, "/ingest/run", strings.NewReader(`{"source":"alphavantage","query":"AAPL"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	err = h.ingestRun(e.NewContext(req, rec))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
