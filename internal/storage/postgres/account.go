package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/cory-johannsen/nosgate/internal/game/character"
)

var (
	// ErrAccountNotFound is returned when no account has the given username or id.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when registering a taken username.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidCredentials is returned when the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountBanned is returned by Authenticate while a ban is in force.
	ErrAccountBanned = errors.New("account banned")
	// ErrInvalidAuthority is returned for an authority outside the known levels.
	ErrInvalidAuthority = errors.New("invalid authority")
)

// Account is one login account. Characters hang off it.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	Authority    int
	// BannedUntil is zero when the account is not banned.
	BannedUntil time.Time
	LastLoginAt time.Time
	CreatedAt   time.Time
}

// BannedAt reports whether a ban is in force at t.
func (a Account) BannedAt(t time.Time) bool {
	return !a.BannedUntil.IsZero() && t.Before(a.BannedUntil)
}

// AccountRepository stores accounts.
type AccountRepository struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// NewAccountRepository creates an AccountRepository backed by db.
func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db, now: time.Now}
}

const accountColumns = `id, username, password_hash, authority, banned_until, last_login_at, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var (
		acct             Account
		bannedUntil, llt *time.Time
	)
	if err := row.Scan(&acct.ID, &acct.Username, &acct.PasswordHash, &acct.Authority,
		&bannedUntil, &llt, &acct.CreatedAt); err != nil {
		return Account{}, err
	}
	if bannedUntil != nil {
		acct.BannedUntil = *bannedUntil
	}
	if llt != nil {
		acct.LastLoginAt = *llt
	}
	return acct, nil
}

// Create registers an account with a bcrypt-hashed password and user authority.
//
// Postcondition: Returns the stored Account, or ErrAccountExists.
func (r *AccountRepository) Create(ctx context.Context, username, password string) (Account, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return Account{}, fmt.Errorf("hashing password: %w", err)
	}
	acct, err := scanAccount(r.db.QueryRow(ctx,
		`INSERT INTO accounts (username, password_hash, authority) VALUES ($1, $2, $3)
		 RETURNING `+accountColumns,
		username, hash, character.AuthorityUser,
	))
	switch {
	case isDuplicateKeyError(err):
		return Account{}, ErrAccountExists
	case err != nil:
		return Account{}, fmt.Errorf("inserting account %q: %w", username, err)
	}
	return acct, nil
}

// Authenticate checks a username and password and stamps the login time.
//
// Postcondition: Returns the Account, or ErrAccountNotFound,
// ErrInvalidCredentials or ErrAccountBanned.
func (r *AccountRepository) Authenticate(ctx context.Context, username, password string) (Account, error) {
	acct, err := r.GetByUsername(ctx, username)
	if err != nil {
		return Account{}, err
	}
	if !CheckPassword(password, acct.PasswordHash) {
		return Account{}, ErrInvalidCredentials
	}
	now := r.now()
	if acct.BannedAt(now) {
		return Account{}, ErrAccountBanned
	}
	if _, err := r.db.Exec(ctx,
		`UPDATE accounts SET last_login_at = $1 WHERE id = $2`, now, acct.ID,
	); err != nil {
		return Account{}, fmt.Errorf("recording login for account %d: %w", acct.ID, err)
	}
	acct.LastLoginAt = now
	return acct, nil
}

// GetByUsername loads an account by its exact username.
//
// Postcondition: Returns the Account or ErrAccountNotFound.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (Account, error) {
	acct, err := scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username,
	))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Account{}, ErrAccountNotFound
	case err != nil:
		return Account{}, fmt.Errorf("querying account %q: %w", username, err)
	}
	return acct, nil
}

// SetAuthority changes the privilege level of an account.
//
// Postcondition: Returns ErrInvalidAuthority or ErrAccountNotFound on failure.
func (r *AccountRepository) SetAuthority(ctx context.Context, accountID int64, authority int) error {
	if !character.ValidAuthority(authority) {
		return ErrInvalidAuthority
	}
	return r.updateOne(ctx, accountID,
		`UPDATE accounts SET authority = $1 WHERE id = $2`, authority)
}

// Ban blocks logins until the given time. A zero time lifts the ban.
//
// Postcondition: Returns ErrAccountNotFound if no such account exists.
func (r *AccountRepository) Ban(ctx context.Context, accountID int64, until time.Time) error {
	var arg *time.Time
	if !until.IsZero() {
		arg = &until
	}
	return r.updateOne(ctx, accountID,
		`UPDATE accounts SET banned_until = $1 WHERE id = $2`, arg)
}

func (r *AccountRepository) updateOne(ctx context.Context, accountID int64, query string, value any) error {
	tag, err := r.db.Exec(ctx, query, value, accountID)
	if err != nil {
		return fmt.Errorf("updating account %d: %w", accountID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// isDuplicateKeyError reports a unique constraint violation (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}
