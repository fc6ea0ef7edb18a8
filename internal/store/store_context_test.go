package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestLatestContextUnknownSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := &Store{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT context_data FROM context_memory WHERE session_id=$1 ORDER BY last_updated DESC, id DESC LIMIT 1`)).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"context_data"}))

	cm, err := s.LatestContext(context.Background(), "nope")
	if err != nil {
		t.Fatalf("LatestContext: %v", err)
	}
	if cm == nil || cm.Len() != 0 {
		t.Fatalf("expected empty context map, got %v", cm)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSaveThenLatestContextPreservesOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := &Store{DB: db}

	cm := NewContextMap()
	cm.Set("zulu", "first answer")
	cm.Set("alpha", "second answer")
	cm.Set("mike", "third answer")

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO context_memory (session_id, context_data) VALUES ($1,$2)`)).
		WithArgs("s1", []byte(`{"zulu":"first answer","alpha":"second answer","mike":"third answer"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.SaveContext(context.Background(), "s1", cm); err != nil {
		t.Fatalf("SaveContext: %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT context_data FROM context_memory WHERE session_id=$1 ORDER BY last_updated DESC, id DESC LIMIT 1`)).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"context_data"}).
			AddRow([]byte(`{"zulu":"first answer","alpha":"second answer","mike":"third answer"}`)))

	got, err := s.LatestContext(context.Background(), "s1")
	if err != nil {
		t.Fatalf("LatestContext: %v", err)
	}
	var keys []string
	for pair := got.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	want := []string{"zulu", "alpha", "mike"}
	if len(keys) != len(want) {
		t.Fatalf("got keys %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("key order %v, want %v", keys, want)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSearchContextOrderAndLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := &Store{DB: db}

	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "session_id", "context_data", "last_updated"}).
		AddRow("1", "a", []byte(`{"what is AAPL":"a stock"}`), t0).
		AddRow("2", "b", []byte(`{"weather":"sunny"}`), t0.Add(time.Minute)).
		AddRow("3", "a", []byte(`{"AAPL earnings":"strong"}`), t0.Add(2*time.Minute)).
		AddRow("4", "c", []byte(`{"more on aapl":"yes"}`), t0.Add(3*time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, session_id, context_data, last_updated FROM context_memory ORDER BY last_updated ASC, id ASC`)).
		WillReturnRows(rows)

	got, err := s.SearchContext(context.Background(), "AAPL", 2)
	if err != nil {
		t.Fatalf("SearchContext: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "3" {
		t.Fatalf("expected oldest-first matches 1,3; got %s,%s", got[0].ID, got[1].ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
