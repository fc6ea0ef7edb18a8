package server

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/aiworker/internal/store"
)

func TestIngestTxtStoresDocumentContext(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("quarterly revenue grew nicely"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO documents (source, title, url, content) VALUES ($1,$2,$3,$4) RETURNING id`)).
		WithArgs("upload", "notes.txt", sqlmock.AnyArg(), "quarterly revenue grew nicely").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("doc-1"))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO insights (document_id, summary) VALUES ($1,$2) RETURNING id`)).
		WithArgs("doc-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ins-1"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT context_data FROM context_memory WHERE session_id=$1 ORDER BY last_updated DESC, id DESC LIMIT 1`)).
		WithArgs("default_session").
		WillReturnRows(sqlmock.NewRows([]string{"context_data"}))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO context_memory (session_id, context_data) VALUES ($1,$2)`)).
		WithArgs("default_session", []byte(`{"document":"quarterly revenue grew nicely"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	h := &RagHandler{
		Store:     &store.Store{DB: db},
		Provider:  newsProvider{},
		UploadDir: dir,
		Logger:    log.New(nullWriter{}, "", 0),
	}

	req := httptest.NewRequest(http.MethodPost, "/rag/ingest", strings.NewReader(`{"filename":"notes.txt"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.ingestHandler(e.NewContext(req, rec)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp IngestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DocumentID != "doc-1" {
		t.Fatalf("document id = %q", resp.DocumentID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIngestUnsupportedExtension(t *testing.T) {
	e := echo.New()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "slides.pptx"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	h := &RagHandler{UploadDir: dir, Logger: log.New(nullWriter{}, "", 0)}

	req := httptest.NewRequest(http.MethodPost, "/rag/ingest", strings.NewReader(`{"filename":"slides.pptx"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	err := h.ingestHandler(e.NewContext(req, rec))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
