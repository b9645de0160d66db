package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/donmccarty/braidmgr-auth/internal/core/domain"
	"github.com/donmccarty/braidmgr-auth/internal/repository"
)

func TestUserRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	now := time.Now().UTC()
	hash := "argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA"
	user := domain.User{
		ID:           "user-1",
		Email:        "dana@example.com",
		PasswordHash: &hash,
		Name:         "Dana",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(
			user.ID,
			user.Email,
			hash,
			user.Name,
			nil,
			false,
			now,
			now,
			nil,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_Create_DuplicateEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	now := time.Now().UTC()
	user := domain.User{ID: "user-1", Email: "dana@example.com", Name: "Dana", CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(user.ID, user.Email, nil, user.Name, nil, false, now, now, nil).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err = repo.Create(context.Background(), user)
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUserRepository_GetByEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	now := time.Now().UTC()
	hash := "argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA"

	rows := pgxmock.NewRows(userColumns).AddRow(
		"user-1", "dana@example.com", hash, "Dana", nil, true, now, now, nil,
	)

	mock.ExpectQuery(`SELECT .*FROM users`).WithArgs("dana@example.com").WillReturnRows(rows)

	user, err := repo.GetByEmail(context.Background(), "dana@example.com")
	if err != nil {
		t.Fatalf("GetByEmail returned error: %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("expected user-1, got %s", user.ID)
	}
	if user.PasswordHash == nil || *user.PasswordHash != hash {
		t.Fatalf("expected password hash pointer populated")
	}
	if !user.EmailVerified {
		t.Fatalf("expected email_verified true")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_GetByEmail_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM users`).
		WithArgs("ghost@example.com").
		WillReturnRows(pgxmock.NewRows(userColumns))

	_, err = repo.GetByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepository_GetByEmail_DeadlineIsUnavailable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM users`).
		WithArgs("dana@example.com").
		WillReturnError(context.DeadlineExceeded)

	_, err = repo.GetByEmail(context.Background(), "dana@example.com")
	if !errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for an expired deadline, got %v", err)
	}
}

func TestUserRepository_EmailExists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WithArgs("dana@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

	exists, err := repo.EmailExists(context.Background(), "dana@example.com")
	if err != nil {
		t.Fatalf("EmailExists returned error: %v", err)
	}
	if !exists {
		t.Fatalf("expected email to exist")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_UpdatePassword_MissingUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	changedAt := time.Now().UTC()

	mock.ExpectExec(`UPDATE users`).
		WithArgs("new-hash", changedAt, "user-404").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	updated, err := repo.UpdatePassword(context.Background(), "user-404", "new-hash", changedAt)
	if err != nil {
		t.Fatalf("UpdatePassword returned error: %v", err)
	}
	if updated {
		t.Fatalf("expected no row updated for missing user")
	}
}

func TestUserRepository_SoftDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	mock.ExpectExec(`UPDATE users`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	deleted, err := repo.SoftDelete(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("SoftDelete returned error: %v", err)
	}
	if !deleted {
		t.Fatalf("expected soft delete to hit a row")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
