package store

import (
	"context"
	"fmt"

	"creator-platform/internal/models"
)

const creatorColumns = `id, user_id, username, display_name, widget_secret_token, created_at, updated_at`

// CreateAccount inserts a user and, when creator is non-nil, its creator
// profile in one transaction. Taken emails or usernames return ErrDuplicate.
func (p *Postgres) CreateAccount(ctx context.Context, email, passwordHash string, creator *models.Creator) (models.User, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.User{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var user models.User
	err = tx.GetContext(ctx, &user,
		`INSERT INTO users (email, password_hash)
		 VALUES ($1, $2)
		 RETURNING id, email, password_hash, created_at, updated_at`, email, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrDuplicate
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}

	if creator != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO creators (user_id, username, display_name, widget_secret_token)
			 VALUES ($1, $2, $3, $4)`,
			user.ID, creator.Username, creator.DisplayName, creator.WidgetSecretToken)
		if err != nil {
			if isUniqueViolation(err) {
				return models.User{}, ErrDuplicate
			}
			return models.User{}, fmt.Errorf("insert creator: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.User{}, fmt.Errorf("commit: %w", err)
	}
	return user, nil
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := p.db.GetContext(ctx, &user,
		`SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = $1`, email)
	return user, notFound(err)
}

func (p *Postgres) GetCreatorByUserID(ctx context.Context, userID int64) (models.Creator, error) {
	var creator models.Creator
	err := p.db.GetContext(ctx, &creator, `SELECT `+creatorColumns+` FROM creators WHERE user_id = $1`, userID)
	return creator, notFound(err)
}

func (p *Postgres) GetCreatorByUsername(ctx context.Context, username string) (models.Creator, error) {
	var creator models.Creator
	err := p.db.GetContext(ctx, &creator, `SELECT `+creatorColumns+` FROM creators WHERE username = $1`, username)
	return creator, notFound(err)
}

func (p *Postgres) GetCreatorByWidgetToken(ctx context.Context, token string) (models.Creator, error) {
	var creator models.Creator
	err := p.db.GetContext(ctx, &creator, `SELECT `+creatorColumns+` FROM creators WHERE widget_secret_token = $1`, token)
	return creator, notFound(err)
}
