package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicpulse/tokenguard/refresh"
)

const tokenColumns = `id, user_id, token_hash, expires_at, revoked_at, device_info, remember_me, created_at, last_used_at`

// PostgresStore implements [Store] on a pgx connection pool.
type PostgresStore struct {
	db    *pgxpool.Pool
	owned bool
}

// NewPostgresStore wraps an existing pool. The caller keeps ownership of the pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool}
}

// OpenPostgres dials databaseURL and verifies connectivity.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	const op = "tokens.postgres.Open"

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	db, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return &PostgresStore{db: db, owned: true}, nil
}

// Close releases the pool when it was opened by [OpenPostgres].
func (s *PostgresStore) Close() {
	if s.owned {
		s.db.Close()
	}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("tokens.postgres.Ping: %w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Issue(ctx context.Context, tok refresh.Token, opts IssueOptions) (IssueResult, error) {
	const op = "tokens.postgres.Issue"

	var res IssueResult
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, tok.UserID); err != nil {
			return err
		}
		var err error
		res, err = issueTx(ctx, tx, tok, opts)
		return err
	})
	if err != nil {
		return IssueResult{}, fmt.Errorf("%s: %w", op, classify(err))
	}
	return res, nil
}

// Supersede moves oldID from ACTIVE to GRACE and inserts next in one transaction.
// The user lock is taken before the row update so Issue and Supersede always acquire
// locks in the same order.
func (s *PostgresStore) Supersede(ctx context.Context, oldID string, revokeAt time.Time, next refresh.Token, opts IssueOptions) (IssueResult, error) {
	const op = "tokens.postgres.Supersede"

	var res IssueResult
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, next.UserID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`UPDATE refresh_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
			oldID, revokeAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE id = $1)`, oldID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrAlreadyRevoked
		}

		res, err = issueTx(ctx, tx, next, opts)
		return err
	})
	if err != nil {
		return IssueResult{}, fmt.Errorf("%s: %w", op, classify(err))
	}
	return res, nil
}

func (s *PostgresStore) FindByHash(ctx context.Context, hash string) (refresh.Token, error) {
	const op = "tokens.postgres.FindByHash"

	row := s.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = $1`, hash)
	tok, err := scanToken(row)
	if err != nil {
		return refresh.Token{}, fmt.Errorf("%s: %w", op, classify(err))
	}
	return tok, nil
}

func (s *PostgresStore) Touch(ctx context.Context, id string, at time.Time) error {
	const op = "tokens.postgres.Touch"

	tag, err := s.db.Exec(ctx, `UPDATE refresh_tokens SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) LatestSuccessor(ctx context.Context, userID string, after, now time.Time) (refresh.Token, error) {
	const op = "tokens.postgres.LatestSuccessor"

	row := s.db.QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM refresh_tokens
		WHERE user_id = $1
		  AND created_at > $2
		  AND revoked_at IS NULL
		  AND expires_at > $3
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		userID, after, now,
	)
	tok, err := scanToken(row)
	if err != nil {
		return refresh.Token{}, fmt.Errorf("%s: %w", op, classify(err))
	}
	return tok, nil
}

// RevokeByHash sets revoked_at = at unless the row is already dead at or before at.
// It reports whether a row with the hash exists.
func (s *PostgresStore) RevokeByHash(ctx context.Context, hash string, at time.Time) (bool, error) {
	const op = "tokens.postgres.RevokeByHash"

	tag, err := s.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE token_hash = $1 AND (revoked_at IS NULL OR revoked_at > $2)`,
		hash, at,
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, classify(err))
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token_hash = $1)`, hash).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, classify(err))
	}
	return exists, nil
}

func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	const op = "tokens.postgres.RevokeAllForUser"

	tag, err := s.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND (revoked_at IS NULL OR revoked_at > $2)`,
		userID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, classify(err))
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "tokens.postgres.DeleteStale"

	tag, err := s.db.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1 OR revoked_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, classify(err))
	}
	return tag.RowsAffected(), nil
}

func lockUser(ctx context.Context, tx pgx.Tx, userID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID)
	return err
}

// issueTx evicts the oldest ACTIVE rows beyond the limit and inserts tok. Caller holds
// the user lock.
func issueTx(ctx context.Context, tx pgx.Tx, tok refresh.Token, opts IssueOptions) (IssueResult, error) {
	var res IssueResult

	if opts.DeviceLimit > 0 {
		rows, err := tx.Query(ctx, `
			SELECT `+tokenColumns+`
			FROM refresh_tokens
			WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
			ORDER BY created_at ASC, id ASC`,
			tok.UserID, opts.Now,
		)
		if err != nil {
			return res, err
		}
		active, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (refresh.Token, error) {
			return scanToken(r)
		})
		if err != nil {
			return res, err
		}

		if excess := len(active) - opts.DeviceLimit + 1; excess > 0 {
			ids := make([]string, 0, excess)
			for _, t := range active[:excess] {
				at := opts.Now
				t.RevokedAt = &at
				ids = append(ids, t.ID)
				res.Evicted = append(res.Evicted, t)
			}
			if _, err := tx.Exec(ctx,
				`UPDATE refresh_tokens SET revoked_at = $2 WHERE id = ANY($1)`,
				ids, opts.Now,
			); err != nil {
				return res, err
			}
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO refresh_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+tokenColumns,
		tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt, tok.RevokedAt,
		tok.DeviceInfo, tok.RememberMe, tok.CreatedAt, tok.LastUsedAt,
	)
	inserted, err := scanToken(row)
	if err != nil {
		return res, err
	}
	res.Token = inserted
	return res, nil
}

func scanToken(row pgx.Row) (refresh.Token, error) {
	var t refresh.Token
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.TokenHash,
		&t.ExpiresAt,
		&t.RevokedAt,
		&t.DeviceInfo,
		&t.RememberMe,
		&t.CreatedAt,
		&t.LastUsedAt,
	)
	return t, err
}

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyRevoked), errors.Is(err, ErrDuplicateHash):
		return err
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrDuplicateHash
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

var _ Store = (*PostgresStore)(nil)
var _ Store = (*MemoryStore)(nil)
