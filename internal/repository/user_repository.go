// internal/repository/user_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/hyggeo/campaign-service/internal/errors"
	"github.com/hyggeo/campaign-service/internal/model"
)

// UserRepository reads the host application's users table.
type UserRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) *UserRepository {
	return &UserRepository{BaseRepository: base}
}

const userColumns = `id, username, email, first_name, last_name, is_staff, is_active, date_joined,
        last_login, email_consent, COALESCE(unsubscribe_token, '') AS unsubscribe_token,
        sustainability_priority, dream_destination`

func (r *UserRepository) AllUsers(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	err := r.DB.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE is_active ORDER BY id`)
	return users, err
}

func (r *UserRepository) Segment(ctx context.Context, name string, now time.Time) ([]model.User, error) {
	users := []model.User{}
	var err error

	switch name {
	case model.SegmentOptedIn:
		err = r.DB.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE is_active AND email_consent ORDER BY id`)
	case model.SegmentStaff:
		err = r.DB.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE is_active AND is_staff ORDER BY id`)
	case model.SegmentRecent:
		err = r.DB.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE is_active AND date_joined >= $1 ORDER BY id`,
			now.Add(-model.RecentWindow))
	default:
		return nil, appErrors.NewValidation("segment", "is not a known segment: "+name)
	}
	return users, err
}

func (r *UserRepository) UsersByIDs(ctx context.Context, ids []int64) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}

	var found []model.User
	if err := r.DB.SelectContext(ctx, &found, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, err
	}

	byID := make(map[int64]model.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (r *UserRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.DB.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewUserNotFound(id)
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetUserByUnsubscribeToken(ctx context.Context, token string) (*model.User, error) {
	var u model.User
	err := r.DB.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE unsubscribe_token=$1`, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &appErrors.NotFoundError{Resource: "user"}
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) SetEmailConsent(ctx context.Context, id int64, consent bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET email_consent=$1 WHERE id=$2`, consent, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewUserNotFound(id)
	}
	return nil
}

// EnsureUnsubscribeTokens backfills tokens for users created before the
// column existed or by the host application without one.
func (r *UserRepository) EnsureUnsubscribeTokens(ctx context.Context) (int, error) {
	issued := 0
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var ids []int64
		err := tx.SelectContext(ctx, &ids, `
            SELECT id FROM users
            WHERE unsubscribe_token IS NULL OR unsubscribe_token = ''
            ORDER BY id FOR UPDATE
        `)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `UPDATE users SET unsubscribe_token=$1 WHERE id=$2`, uuid.NewString(), id); err != nil {
				return fmt.Errorf("failed to issue unsubscribe token for user %d: %w", id, err)
			}
		}
		issued = len(ids)
		return nil
	})
	return issued, err
}

var _ UserDirectory = (*UserRepository)(nil)
