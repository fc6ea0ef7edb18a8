package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/aiworker/internal/store"
)

func TestDashboardInsightsUsesConfiguredPageSize(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "kind", "content", "created_at"})
	for i := 0; i < 7; i++ {
		rows.AddRow(fmt.Sprintf("rep-%d", i), "news", "summary", time.Now())
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, kind, content, created_at FROM reports ORDER BY created_at DESC`)).
		WillReturnRows(rows)

	h := &DashboardHandler{Store: &store.Store{DB: db}, DefaultLimit: 3}

	req := httptest.NewRequest(http.MethodGet, "/dashboard/insights", nil)
	rec := httptest.NewRecorder()
	if err := h.insights(e.NewContext(req, rec)); err != nil {
		t.Fatalf("insights: %v", err)
	}

	var reports []store.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &reports); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("expected configured page size of 3 reports, got %d", len(reports))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDashboardInsightsExplicitLimitOverridesDefault(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "kind", "content", "created_at"})
	for i := 0; i < 7; i++ {
		rows.AddRow(fmt.Sprintf("rep-%d", i), "news", "summary", time.Now())
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, kind, content, created_at FROM reports ORDER BY created_at DESC`)).
		WillReturnRows(rows)

	h := &DashboardHandler{Store: &store.Store{DB: db}, DefaultLimit: 3}

	req := httptest.NewRequest(http.MethodGet, "/dashboard/insights?limit=5", nil)
	rec := httptest.NewRecorder()
	if err := h.insights(e.NewContext(req, rec)); err != nil {
		t.Fatalf("insights: %v", err)
	}

	var reports []store.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &reports); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(reports) != 5 {
		t.Fatalf("expected 5 reports with explicit limit, got %d", len(reports))
	}
}
