package server

import (
	"context"
	"log"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/mohammad-safakhou/aiworker/internal/store"
)

type refusingProvider struct{ t *testing.T }

func (p refusingProvider) CreateEmbedding(_ context.Context, _ []string) ([][]float32, error) {
	p.t.Fatal("CreateEmbedding should not be called")
	return nil, nil
}

func (p refusingProvider) Completion(_ context.Context, _, _ string) (string, error) {
	p.t.Fatal("Completion should not be called")
	return "", nil
}

func TestJobRunSkipsReportWhenFetchIsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	j := Job{
		Name:   "news_report",
		Kind:   "news",
		Limit:  5,
		Prompt: "Summarize today's news: ",
		Fetch:  staticFetcher{},
	}
	err = j.run(context.Background(), &store.Store{DB: db}, refusingProvider{t}, log.New(nullWriter{}, "", 0))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
