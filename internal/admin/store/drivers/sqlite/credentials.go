package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sahtee/admin/internal/admin/domain"
)

type credentialsRepo struct {
	db dbtx
}

func (r *credentialsRepo) GetCredential(ctx context.Context, profile string) (domain.Credential, error) {
	query, args, err := ssq.
		Select("profile", "sealed", "subject", "expires_at", "created_at", "updated_at").
		From("credentials").
		Where("profile = ?", profile).
		ToSql()
	if err != nil {
		return domain.Credential{}, fmt.Errorf("building credential query: %w", err)
	}

	var (
		c                    domain.Credential
		expiresAt            sql.NullInt64
		createdAt, updatedAt int64
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&c.Profile, &c.Sealed, &c.Subject, &expiresAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.Credential{}, mapNotFound(err)
	}

	c.ExpiresAt = mapNullTimePtr(expiresAt)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}

func (r *credentialsRepo) PutCredential(ctx context.Context, c domain.Credential) error {
	query, args, err := ssq.
		Insert("credentials").
		Columns("profile", "sealed", "subject", "expires_at", "created_at", "updated_at").
		Values(c.Profile, c.Sealed, c.Subject, mapOptionalTime(c.ExpiresAt), toMillis(c.CreatedAt), toMillis(c.UpdatedAt)).
		Suffix(`ON CONFLICT (profile) DO UPDATE SET
			sealed = excluded.sealed,
			subject = excluded.subject,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("building credential upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	return nil
}

func (r *credentialsRepo) DeleteCredential(ctx context.Context, profile string) error {
	query, args, err := ssq.Delete("credentials").Where("profile = ?", profile).ToSql()
	if err != nil {
		return fmt.Errorf("building credential delete: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return nil
}
