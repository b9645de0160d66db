package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/donmccarty/braidmgr-auth/internal/core/domain"
)

func TestLoginAttemptRepository_RecordAttempt(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLoginAttemptRepository(mock)

	now := time.Now().UTC()
	ip := "198.51.100.7"
	attempt := domain.LoginAttempt{
		ID:        "la-1",
		Email:     "dana@example.com",
		Success:   false,
		IP:        &ip,
		CreatedAt: now,
	}

	mock.ExpectExec(`INSERT INTO login_attempts`).
		WithArgs(attempt.ID, attempt.Email, false, ip, nil, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.RecordAttempt(context.Background(), attempt); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLoginAttemptRepository_FailureWindow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLoginAttemptRepository(mock)

	oldest := time.Now().UTC().Add(-10 * time.Minute)

	mock.ExpectQuery(`SELECT COUNT\(\*\), MIN\(created_at\) FROM login_attempts`).
		WithArgs("dana@example.com", false, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count", "min"}).AddRow(int64(5), oldest))

	count, got, err := repo.FailureWindow(context.Background(), "dana@example.com", 30*time.Minute)
	if err != nil {
		t.Fatalf("FailureWindow returned error: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected count 5, got %d", count)
	}
	if !got.Equal(oldest) {
		t.Fatalf("expected oldest %v, got %v", oldest, got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLoginAttemptRepository_FailureWindow_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLoginAttemptRepository(mock)

	mock.ExpectQuery(`SELECT COUNT\(\*\), MIN\(created_at\) FROM login_attempts`).
		WithArgs("quiet@example.com", false, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count", "min"}).AddRow(int64(0), nil))

	count, oldest, err := repo.FailureWindow(context.Background(), "quiet@example.com", 30*time.Minute)
	if err != nil {
		t.Fatalf("FailureWindow returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero count, got %d", count)
	}
	if !oldest.IsZero() {
		t.Fatalf("expected zero time for empty window, got %v", oldest)
	}
}

func TestLoginAttemptRepository_CleanupOldAttempts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLoginAttemptRepository(mock)

	cutoff := time.Now().UTC().Add(-90 * 24 * time.Hour)

	mock.ExpectExec(`DELETE FROM login_attempts`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 40))

	removed, err := repo.CleanupOldAttempts(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("CleanupOldAttempts returned error: %v", err)
	}
	if removed != 40 {
		t.Fatalf("expected 40 rows removed, got %d", removed)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
