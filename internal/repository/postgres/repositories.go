package postgres

// Repositories bundles the PostgreSQL-backed repository set built from a
// single store.
type Repositories struct {
	Users         *UserRepository
	Tokens        *TokenRepository
	LoginAttempts *LoginAttemptRepository
	OAuthAccounts *OAuthAccountRepository
}

// NewRepositories wires every repository onto the store's pool.
func NewRepositories(store *Store) *Repositories {
	pool := store.Pool()
	return &Repositories{
		Users:         NewUserRepository(pool),
		Tokens:        NewTokenRepository(pool),
		LoginAttempts: NewLoginAttemptRepository(pool),
		OAuthAccounts: NewOAuthAccountRepository(pool),
	}
}
