package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"smsdispatch/internal/models"
)

func TestCampaignTransition(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectExec("UPDATE campaigns").
		WithArgs(int64(5), models.CampaignStatusSending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Transition(context.Background(), 5,
		[]models.CampaignStatus{models.CampaignStatusQueued}, models.CampaignStatusSending)
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	expectationsMet(t, mock)
}

func TestCampaignTransition_Conflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectExec("UPDATE campaigns").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.Transition(context.Background(), 5,
		[]models.CampaignStatus{models.CampaignStatusSending}, models.CampaignStatusPaused)
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("Transition() error = %v, want ErrStateConflict", err)
	}
	expectationsMet(t, mock)
}

func TestCampaignTransition_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectExec("UPDATE campaigns").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.Transition(context.Background(), 404,
		[]models.CampaignStatus{models.CampaignStatusDraft}, models.CampaignStatusQueued)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Transition() error = %v, want ErrNotFound", err)
	}
	expectationsMet(t, mock)
}

func TestCampaignCancel_CancelsQueuedTargets(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE campaigns").
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE targets").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	n, err := repo.Cancel(context.Background(), 7)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Cancel() = %d, want 3", n)
	}
	expectationsMet(t, mock)
}

func TestCampaignCancel_FromCompletedRejected(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE campaigns").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	if _, err := repo.Cancel(context.Background(), 7); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("Cancel() error = %v, want ErrStateConflict", err)
	}
	expectationsMet(t, mock)
}

func TestCampaignRetryFailed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE campaigns").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE targets").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := repo.RetryFailed(context.Background(), 7)
	if err != nil || n != 2 {
		t.Fatalf("RetryFailed() = %d, %v", n, err)
	}
	expectationsMet(t, mock)
}

func TestCampaignGetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "account_id", "name", "template", "audience", "sender_id", "status", "schedule_at", "timezone",
		"total_targets", "est_credits", "spent_credits", "materialized_at", "last_error", "created_at", "updated_at",
	}).AddRow(
		3, 1, "Promo", "Olá {{name}}", []byte(`{"kind":"manual","phones":["912345678"]}`), "", "draft", nil, "",
		0, 0, 0, nil, nil, now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM campaigns WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(rows)

	c, err := repo.GetByID(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if c.Audience.Kind != models.AudienceManual || len(c.Audience.Phones) != 1 || c.Status != models.CampaignStatusDraft {
		t.Errorf("GetByID() = %+v", c)
	}
	expectationsMet(t, mock)
}

func TestCampaignGetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM campaigns WHERE id").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.GetByID(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByID() error = %v, want ErrNotFound", err)
	}
	expectationsMet(t, mock)
}
