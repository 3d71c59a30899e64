// Package services содержит логику бизнес-уровня для работы с профилями
// пользователей: чтение и обновление собственного профиля, деактивацию
// и административные операции со списком учётных записей.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/tour-booking/internal/lib/sl"
	"github.com/magabrotheeeer/tour-booking/internal/models"
)

// profileCacheTTL время жизни закэшированного профиля.
const profileCacheTTL = 5 * time.Minute

// UserRepository описывает операции хранилища, нужные сервису профилей.
type UserRepository interface {
	GetUserByUID(ctx context.Context, userUID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userUID, name, email string) (*models.User, error)
	DeactivateUser(ctx context.Context, userUID string) error
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	DeleteUser(ctx context.Context, userUID string) error
}

// ProfileCache кэш публичных профилей. Промах кэша не является ошибкой.
type ProfileCache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// UserService отвечает за операции с профилями пользователей.
type UserService struct {
	users UserRepository
	cache ProfileCache
	log   *slog.Logger
}

// NewUserService создает новый экземпляр UserService.
func NewUserService(users UserRepository, cache ProfileCache, log *slog.Logger) *UserService {
	return &UserService{
		users: users,
		cache: cache,
		log:   log,
	}
}

func profileCacheKey(userUID string) string {
	return "profile:" + userUID
}

// GetMe возвращает публичный профиль пользователя, сквозное чтение через кэш.
// Ошибки кэша только логируются: источником истины остается хранилище.
func (s *UserService) GetMe(ctx context.Context, userUID string) (*models.PublicUser, error) {
	const op = "user.GetMe"
	if s.cache != nil {
		var cached models.PublicUser
		found, err := s.cache.Get(ctx, profileCacheKey(userUID), &cached)
		if err != nil {
			s.log.Error("profile cache read failed", sl.Err(err))
		} else if found {
			return &cached, nil
		}
	}

	user, err := s.users.GetUserByUID(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	public := user.Public()

	if s.cache != nil {
		if err := s.cache.Set(ctx, profileCacheKey(userUID), public, profileCacheTTL); err != nil {
			s.log.Error("profile cache write failed", sl.Err(err))
		}
	}
	return &public, nil
}

// UpdateMe обновляет имя и email пользователя и сбрасывает кэш профиля.
func (s *UserService) UpdateMe(ctx context.Context, userUID, name, email string) (*models.PublicUser, error) {
	const op = "user.UpdateMe"
	user, err := s.users.UpdateProfile(ctx, userUID, name, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateProfile(ctx, userUID)
	public := user.Public()
	return &public, nil
}

// DeleteMe деактивирует учётную запись пользователя (мягкое удаление)
// и сбрасывает кэш профиля.
func (s *UserService) DeleteMe(ctx context.Context, userUID string) error {
	const op = "user.DeleteMe"
	if err := s.users.DeactivateUser(ctx, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateProfile(ctx, userUID)
	return nil
}

// ListUsers возвращает страницу публичных профилей. Административная операция.
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]models.PublicUser, error) {
	const op = "user.ListUsers"
	users, err := s.users.ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result := make([]models.PublicUser, 0, len(users))
	for _, u := range users {
		result = append(result, u.Public())
	}
	return result, nil
}

// RemoveUser полностью удаляет учётную запись. Административная операция.
func (s *UserService) RemoveUser(ctx context.Context, userUID string) error {
	const op = "user.RemoveUser"
	if err := s.users.DeleteUser(ctx, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateProfile(ctx, userUID)
	return nil
}

func (s *UserService) invalidateProfile(ctx context.Context, userUID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, profileCacheKey(userUID)); err != nil {
		s.log.Error("profile cache invalidation failed", sl.Err(err))
	}
}
