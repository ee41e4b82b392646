package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/utils"
)

// AccountRepo is the Credential Store: one row per (user, provider) in
// connected_accounts.  Access and refresh tokens are sealed with the
// configured TokenCipher before they reach the database.
type AccountRepo struct {
	db     *sql.DB
	cipher *utils.TokenCipher
	now    func() time.Time
}

// NewAccountRepo returns an AccountRepo.  cipher may be nil.
func NewAccountRepo(db *sql.DB, cipher *utils.TokenCipher) *AccountRepo {
	return &AccountRepo{db: db, cipher: cipher, now: time.Now}
}

const accountColumns = "id, user_id, provider, account_id, access_token, refresh_token, expires_at, scopes, created_at, updated_at"

// Get fetches the account linked by userID for provider.  It returns
// ErrAccountNotFound when the user never linked the provider.
func (r *AccountRepo) Get(ctx context.Context, userID string, provider model.Provider) (*model.ConnectedAccount, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM connected_accounts WHERE user_id = ? AND provider = ? LIMIT 1",
		userID, string(provider))
	a, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	return a, err
}

// ListByUser returns every linked provider of userID.
func (r *AccountRepo) ListByUser(ctx context.Context, userID string) ([]model.ConnectedAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM connected_accounts WHERE user_id = ? ORDER BY provider",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ConnectedAccount{}
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Upsert creates the account row or replaces the stored grant for the
// same (user, provider).  An empty RefreshToken, nil ExpiresAt or empty
// Scopes keep the values already stored, matching how providers omit
// fields they did not reissue.
func (r *AccountRepo) Upsert(ctx context.Context, a *model.ConnectedAccount) error {
	access, err := r.cipher.Seal(a.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := r.cipher.Seal(a.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	now := toMs(r.now())
	refreshArg := sql.NullString{String: refresh, Valid: refresh != ""}
	scopesArg := sql.NullString{String: a.Scopes, Valid: a.Scopes != ""}

	update := func() (int64, error) {
		res, err := r.db.ExecContext(ctx,
			`UPDATE connected_accounts SET account_id = ?, access_token = ?,
				refresh_token = COALESCE(?, refresh_token),
				expires_at = COALESCE(?, expires_at),
				scopes = COALESCE(?, scopes),
				updated_at = ?
			 WHERE user_id = ? AND provider = ?`,
			a.AccountID, access, refreshArg, nullMs(a.ExpiresAt), scopesArg, now, a.UserID, string(a.Provider))
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}

	n, err := update()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO connected_accounts ("+accountColumns+") VALUES (?,?,?,?,?,?,?,?,?,?)",
		a.ID, a.UserID, string(a.Provider), a.AccountID, access, refreshArg, nullMs(a.ExpiresAt), scopesArg, now, now)
	if isDuplicate(err) {
		// lost the insert race; the other writer's row now exists
		_, err = update()
	}
	return err
}

// UpdateTokens persists a refreshed grant.  refreshToken may be empty when
// the provider did not issue a new one, in which case the stored one is
// kept.
func (r *AccountRepo) UpdateTokens(ctx context.Context, userID string, provider model.Provider, accessToken, refreshToken string, expiresAt *time.Time) error {
	access, err := r.cipher.Seal(accessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := r.cipher.Seal(refreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE connected_accounts SET access_token = ?,
			refresh_token = COALESCE(?, refresh_token),
			expires_at = COALESCE(?, expires_at),
			updated_at = ?
		 WHERE user_id = ? AND provider = ?`,
		access, sql.NullString{String: refresh, Valid: refresh != ""}, nullMs(expiresAt), toMs(r.now()),
		userID, string(provider))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Delete removes the link.  Deleting a missing link is not an error.
func (r *AccountRepo) Delete(ctx context.Context, userID string, provider model.Provider) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM connected_accounts WHERE user_id = ? AND provider = ?",
		userID, string(provider))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *AccountRepo) scan(s rowScanner) (*model.ConnectedAccount, error) {
	var a model.ConnectedAccount
	var provider, access string
	var refresh, scopes sql.NullString
	var expires sql.NullInt64
	var createdAt, updated int64
	if err := s.Scan(&a.ID, &a.UserID, &provider, &a.AccountID, &access, &refresh, &expires, &scopes, &createdAt, &updated); err != nil {
		return nil, err
	}
	var err error
	if a.AccessToken, err = r.cipher.Open(access); err != nil {
		return nil, err
	}
	if refresh.Valid {
		if a.RefreshToken, err = r.cipher.Open(refresh.String); err != nil {
			return nil, err
		}
	}
	a.Provider = model.Provider(provider)
	a.ExpiresAt = timePtr(expires)
	a.Scopes = scopes.String
	a.CreatedAt = fromMs(createdAt)
	a.UpdatedAt = fromMs(updated)
	return &a, nil
}
