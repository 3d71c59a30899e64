package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/magabrotheeeer/tour-booking/internal/models"
)

const userColumns = `uid, name, email, password_hash, role, password_changed_at,
			  password_reset_token_hash, password_reset_expires_at, is_active`

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	var passwordChangedAt, resetExpiresAt sql.NullTime
	var resetTokenHash sql.NullString
	if err := row.Scan(&u.UID, &u.Name, &u.Email, &u.PasswordHash, &u.Role,
		&passwordChangedAt, &resetTokenHash, &resetExpiresAt, &u.IsActive); err != nil {
		return nil, err
	}
	if passwordChangedAt.Valid {
		u.PasswordChangedAt = &passwordChangedAt.Time
	}
	if resetTokenHash.Valid {
		u.PasswordResetTokenHash = &resetTokenHash.String
	}
	if resetExpiresAt.Valid {
		u.PasswordResetExpiresAt = &resetExpiresAt.Time
	}
	return u, nil
}

// RegisterUser сохраняет нового пользователя и возвращает его UID.
func (s *Storage) RegisterUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.RegisterUser"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newUID string
	query := `INSERT INTO users (uid, name, email, password_hash, role)
			  VALUES ($1, $2, LOWER($3), $4, $5)
			  RETURNING uid;`
	if err := s.DB.QueryRowContext(ctx, query,
		user.UID, user.Name, user.Email, user.PasswordHash, user.Role).Scan(&newUID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

// GetUserByEmail возвращает активного пользователя по email вместе с хэшем пароля.
// Email сравнивается в нижнем регистре.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE email = LOWER($1) AND is_active = TRUE`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByUID возвращает активного пользователя по его UID.
func (s *Storage) GetUserByUID(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUserByUID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE uid = $1 AND is_active = TRUE`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByResetTokenHash возвращает активного пользователя,
// у которого сохранен данный дайджест токена сброса пароля.
func (s *Storage) GetUserByResetTokenHash(ctx context.Context, tokenHash string) (*models.User, error) {
	const op = "storage.GetUserByResetTokenHash"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE password_reset_token_hash = $1 AND is_active = TRUE`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// SetResetToken сохраняет дайджест токена сброса и срок его действия.
// Пара полей всегда пишется вместе: либо оба значения, либо ничего.
func (s *Storage) SetResetToken(ctx context.Context, userUID, tokenHash string, expiresAt time.Time) error {
	const op = "storage.SetResetToken"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET password_reset_token_hash = $1,
			      password_reset_expires_at = $2
			  WHERE uid = $3 AND is_active = TRUE`
	res, err := s.DB.ExecContext(ctx, query, tokenHash, expiresAt, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

// ClearResetToken откатывает незавершённый сброс пароля,
// удаляя дайджест токена вместе со сроком действия.
func (s *Storage) ClearResetToken(ctx context.Context, userUID string) error {
	const op = "storage.ClearResetToken"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET password_reset_token_hash = NULL,
			      password_reset_expires_at = NULL
			  WHERE uid = $1`
	if _, err := s.DB.ExecContext(ctx, query, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdatePassword заменяет хэш пароля, фиксирует момент смены
// и очищает поля сброса. Токены, выпущенные до changedAt, становятся недействительными.
func (s *Storage) UpdatePassword(ctx context.Context, userUID, passwordHash string, changedAt time.Time) error {
	const op = "storage.UpdatePassword"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET password_hash = $1,
			      password_changed_at = $2,
			      password_reset_token_hash = NULL,
			      password_reset_expires_at = NULL
			  WHERE uid = $3 AND is_active = TRUE`
	res, err := s.DB.ExecContext(ctx, query, passwordHash, changedAt, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

// UpdateProfile обновляет имя и email пользователя и возвращает свежую запись.
func (s *Storage) UpdateProfile(ctx context.Context, userUID, name, email string) (*models.User, error) {
	const op = "storage.UpdateProfile"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET name = $1,
			      email = LOWER($2)
			  WHERE uid = $3 AND is_active = TRUE
			  RETURNING ` + userColumns
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, name, email, userUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// DeactivateUser помечает учётную запись как неактивную (мягкое удаление).
// Такая запись исключается из всех выборок аутентификации.
func (s *Storage) DeactivateUser(ctx context.Context, userUID string) error {
	const op = "storage.DeactivateUser"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET is_active = FALSE
			  WHERE uid = $1 AND is_active = TRUE`
	res, err := s.DB.ExecContext(ctx, query, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

// ListUsers возвращает страницу активных пользователей.
func (s *Storage) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	const op = "storage.ListUsers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE is_active = TRUE
			  ORDER BY email
			  LIMIT $1 OFFSET $2`
	rows, err := s.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		u := &models.User{}
		var passwordChangedAt, resetExpiresAt sql.NullTime
		var resetTokenHash sql.NullString
		if err = rows.Scan(&u.UID, &u.Name, &u.Email, &u.PasswordHash, &u.Role,
			&passwordChangedAt, &resetTokenHash, &resetExpiresAt, &u.IsActive); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if passwordChangedAt.Valid {
			u.PasswordChangedAt = &passwordChangedAt.Time
		}
		if resetTokenHash.Valid {
			u.PasswordResetTokenHash = &resetTokenHash.String
		}
		if resetExpiresAt.Valid {
			u.PasswordResetExpiresAt = &resetExpiresAt.Time
		}
		result = append(result, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// DeleteUser полностью удаляет учётную запись. Доступно только администратору.
func (s *Storage) DeleteUser(ctx context.Context, userUID string) error {
	const op = "storage.DeleteUser"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM users WHERE uid = $1`, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}
