package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/vibast-solutions/ms-go-course-purchases/app/entity"
)

func TestMarkCompletedOnlyWritesCompletedAndKeepsFirstCompletion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_purchases SET") + "(?s).*" +
		regexp.QuoteMeta("completed_at = COALESCE(completed_at, ?)") + ".*" + regexp.QuoteMeta("WHERE id = ?")).
		WithArgs(int64(entity.PurchaseStatusCompleted), int64(95000), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewCoursePurchaseRepository(db).MarkCompleted(context.Background(), 12, 95000, time.Now()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAttachCheckoutSession(t *testing.T) {
	tests := []struct {
		name    string
		result  error
		rows    int64
		wantErr error
	}{
		{name: "attached", rows: 1},
		{name: "already attached", rows: 0, wantErr: ErrPurchaseNotFound},
		{name: "session taken", result: &mysqlDriver.MySQLError{Number: 1062}, wantErr: ErrPurchaseAlreadyExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create sqlmock: %v", err)
			}
			defer db.Close()

			exec := mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND provider_session_id IS NULL")).
				WithArgs("cs_1", "https://checkout.test/cs_1", sqlmock.AnyArg(), int64(12))
			if tt.result != nil {
				exec.WillReturnError(tt.result)
			} else {
				exec.WillReturnResult(sqlmock.NewResult(0, tt.rows))
			}

			err = NewCoursePurchaseRepository(db).AttachCheckoutSession(context.Background(), 12, "cs_1", "https://checkout.test/cs_1", time.Now())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}
