package design

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRepositoryCreateStoresNullColors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	repo := NewRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO designs")).
		WithArgs(int64(1), "D-1", "https://cdn/x.png", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "factory_id", "design_number", "image_url", "color_variants", "created_at", "updated_at"}).
			AddRow(3, 1, "D-1", "https://cdn/x.png", nil, now, now))

	d, err := repo.Create(context.Background(), 1, "D-1", "https://cdn/x.png", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != 3 || d.ColorVariants != nil {
		t.Fatalf("got %+v", d)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRepositoryDeleteMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM designs WHERE id = $1")).
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := NewRepository(db).Delete(context.Background(), 8); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}
