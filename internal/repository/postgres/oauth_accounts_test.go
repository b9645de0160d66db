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

func TestOAuthAccountRepository_Create_Duplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewOAuthAccountRepository(mock)

	now := time.Now().UTC()
	account := domain.OAuthAccount{
		ID:             "oa-1",
		UserID:         "user-1",
		Provider:       domain.OAuthProviderGoogle,
		ProviderUserID: "google-uid-1",
		CreatedAt:      now,
	}

	mock.ExpectExec(`INSERT INTO oauth_accounts`).
		WithArgs(account.ID, account.UserID, account.Provider, account.ProviderUserID, nil, now).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "oauth_accounts_provider_uid_key"})

	err = repo.Create(context.Background(), account)
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestOAuthAccountRepository_GetByProvider(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewOAuthAccountRepository(mock)

	now := time.Now().UTC()
	email := "dana@example.com"

	rows := pgxmock.NewRows(oauthAccountColumns).AddRow(
		"oa-1", "user-1", domain.OAuthProvider("google"), "google-uid-1", email, now,
	)

	mock.ExpectQuery(`SELECT .*FROM oauth_accounts`).
		WithArgs(domain.OAuthProviderGoogle, "google-uid-1").
		WillReturnRows(rows)

	account, err := repo.GetByProvider(context.Background(), domain.OAuthProviderGoogle, "google-uid-1")
	if err != nil {
		t.Fatalf("GetByProvider returned error: %v", err)
	}
	if account.UserID != "user-1" {
		t.Fatalf("expected user-1, got %s", account.UserID)
	}
	if account.Email == nil || *account.Email != email {
		t.Fatalf("expected email pointer populated")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOAuthAccountRepository_GetByProvider_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewOAuthAccountRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM oauth_accounts`).
		WithArgs(domain.OAuthProviderMicrosoft, "ms-uid-404").
		WillReturnRows(pgxmock.NewRows(oauthAccountColumns))

	_, err = repo.GetByProvider(context.Background(), domain.OAuthProviderMicrosoft, "ms-uid-404")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOAuthAccountRepository_HasProvider(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewOAuthAccountRepository(mock)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM oauth_accounts`).
		WithArgs(domain.OAuthProviderGoogle, "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

	linked, err := repo.HasProvider(context.Background(), "user-1", domain.OAuthProviderGoogle)
	if err != nil {
		t.Fatalf("HasProvider returned error: %v", err)
	}
	if !linked {
		t.Fatalf("expected provider linked")
	}
}
