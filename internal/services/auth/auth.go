// Package services содержит логику бизнес-уровня для аутентификации:
// регистрацию, вход, проверку токена доступа и жизненный цикл
// сброса пароля.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/tour-booking/internal/lib/jwt"
	"github.com/magabrotheeeer/tour-booking/internal/lib/password"
	"github.com/magabrotheeeer/tour-booking/internal/lib/resettoken"
	"github.com/magabrotheeeer/tour-booking/internal/lib/sl"
	"github.com/magabrotheeeer/tour-booking/internal/models"
	"github.com/magabrotheeeer/tour-booking/internal/storage"
)

// ResetTokenTTL срок действия токена сброса пароля.
const ResetTokenTTL = 10 * time.Minute

// Ошибки аутентификации. Обработчики превращают их в HTTP-статусы;
// ErrInvalidCredentials намеренно не различает неизвестный email
// и неверный пароль.
var (
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrAccountGone        = errors.New("account no longer exists")
	ErrStaleToken         = errors.New("password changed after token was issued")
	ErrResetTokenNotFound = errors.New("reset token is invalid")
	ErrResetTokenExpired  = errors.New("reset token has expired")
	ErrEmailDelivery      = errors.New("failed to send reset email")
	ErrWrongPassword      = errors.New("current password is wrong")
)

// UserRepository описывает контракт для работы с учётными записями в базе данных.
// Все выборки возвращают только активных пользователей.
type UserRepository interface {
	RegisterUser(ctx context.Context, user models.User) (string, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUID(ctx context.Context, userUID string) (*models.User, error)
	GetUserByResetTokenHash(ctx context.Context, tokenHash string) (*models.User, error)
	SetResetToken(ctx context.Context, userUID, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, userUID string) error
	UpdatePassword(ctx context.Context, userUID, passwordHash string, changedAt time.Time) error
}

// ResetMailer отправляет письмо со ссылкой для сброса пароля.
// Отправка синхронная: ошибка доставки откатывает состояние сброса.
type ResetMailer interface {
	SendPasswordReset(name, email, resetURL string) error
}

// WelcomePublisher публикует уведомление о регистрации нового пользователя.
type WelcomePublisher interface {
	Publish(routingKey string, message any) error
}

// AuthService отвечает за регистрацию, вход, проверку JWT
// и восстановление пароля.
type AuthService struct {
	users     UserRepository
	jwtMaker  jwt.Maker
	mailer    ResetMailer
	publisher WelcomePublisher
	publicURL string
	log       *slog.Logger
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(users UserRepository, jwtMaker jwt.Maker, mailer ResetMailer,
	publisher WelcomePublisher, publicURL string, log *slog.Logger) *AuthService {
	return &AuthService{
		users:     users,
		jwtMaker:  jwtMaker,
		mailer:    mailer,
		publisher: publisher,
		publicURL: publicURL,
		log:       log,
	}
}

// Register создает нового пользователя с хэшированием пароля и ролью "user",
// публикует приветственное уведомление и выпускает токен доступа.
func (s *AuthService) Register(ctx context.Context, name, email, rawPassword string) (string, *models.PublicUser, error) {
	const op = "auth.Register"
	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	user := models.User{
		UID:          uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hashed,
		Role:         models.RoleUser, // дефолтная роль при регистрации
		IsActive:     true,
	}
	newUID, err := s.users.RegisterUser(ctx, user)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	user.UID = newUID

	// Приветственное письмо уходит асинхронно; сбой публикации
	// не должен ломать регистрацию.
	if s.publisher != nil {
		msg := models.WelcomeMessage{
			Name:  user.Name,
			Email: user.Email,
			URL:   s.publicURL + "/me",
		}
		if err := s.publisher.Publish("welcome", msg); err != nil {
			s.log.Error("failed to publish welcome notification", sl.Err(err))
		}
	}

	token, err := s.jwtMaker.GenerateToken(user.UID)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	public := user.Public()
	return token, &public, nil
}

// Login проверяет пароль пользователя и выпускает токен доступа.
// Неизвестный email и неверный пароль дают одну и ту же ошибку.
func (s *AuthService) Login(ctx context.Context, email, rawPassword string) (string, *models.PublicUser, error) {
	const op = "auth.Login"
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.jwtMaker.GenerateToken(user.UID)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	public := user.Public()
	return token, &public, nil
}

// Authenticate проверяет токен доступа и возвращает владеющего им пользователя.
// Токен отклоняется, если подпись неверна, срок истёк, учётная запись
// пропала или пароль менялся после выпуска токена.
func (s *AuthService) Authenticate(ctx context.Context, tokenStr string) (*models.User, error) {
	const op = "auth.Authenticate"
	claims, err := s.jwtMaker.ParseToken(tokenStr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user, err := s.users.GetUserByUID(ctx, claims.UserUID())
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrAccountGone)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if claims.IssuedAt == nil || user.PasswordChangedAfter(claims.IssuedAt.Time) {
		return nil, fmt.Errorf("%s: %w", op, ErrStaleToken)
	}
	return user, nil
}

// ForgotPassword генерирует одноразовый токен сброса, сохраняет его дайджест
// со сроком действия и отправляет открытый токен на почту пользователя.
// При сбое доставки состояние сброса откатывается.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	const op = "auth.ForgotPassword"
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	token, digest, err := resettoken.New()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.SetResetToken(ctx, user.UID, digest, time.Now().Add(ResetTokenTTL)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	resetURL := fmt.Sprintf("%s/api/v1/resetPassword/%s", s.publicURL, token)
	if err := s.mailer.SendPasswordReset(user.Name, user.Email, resetURL); err != nil {
		s.log.Error("reset email delivery failed, rolling back reset state", sl.Err(err))
		if clearErr := s.users.ClearResetToken(ctx, user.UID); clearErr != nil {
			s.log.Error("failed to roll back reset token", sl.Err(clearErr))
		}
		return fmt.Errorf("%s: %w", op, ErrEmailDelivery)
	}
	return nil
}

// ResetPassword потребляет токен сброса: сверяет дайджест, проверяет срок,
// заменяет пароль и выпускает новый токен доступа. Истёкший токен оставляется
// на месте — проверка срока авторитетна сама по себе.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (string, *models.PublicUser, error) {
	const op = "auth.ResetPassword"
	digest := resettoken.Hash(token)
	user, err := s.users.GetUserByResetTokenHash(ctx, digest)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return "", nil, ErrResetTokenNotFound
		}
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	// Строгое "сейчас позже срока": предъявление ровно в момент истечения
	// еще считается действительным.
	if user.PasswordResetExpiresAt == nil || time.Now().After(*user.PasswordResetExpiresAt) {
		return "", nil, ErrResetTokenExpired
	}

	hashed, err := password.GetHash(newPassword)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.UpdatePassword(ctx, user.UID, hashed, passwordChangeTime()); err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	accessToken, err := s.jwtMaker.GenerateToken(user.UID)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	public := user.Public()
	return accessToken, &public, nil
}

// UpdatePassword меняет пароль аутентифицированного пользователя,
// предварительно сверив текущий, и выпускает свежий токен доступа.
func (s *AuthService) UpdatePassword(ctx context.Context, userUID, currentPassword, newPassword string) (string, error) {
	const op = "auth.UpdatePassword"
	user, err := s.users.GetUserByUID(ctx, userUID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, currentPassword); err != nil {
		return "", ErrWrongPassword
	}

	hashed, err := password.GetHash(newPassword)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.UpdatePassword(ctx, user.UID, hashed, passwordChangeTime()); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return s.jwtMaker.GenerateToken(user.UID)
}

// passwordChangeTime возвращает момент смены пароля, сдвинутый на секунду назад.
// Сдвиг гасит гонку с IssuedAt токена, выпускаемого сразу после смены:
// без него свежий токен выглядел бы выпущенным до смены пароля.
func passwordChangeTime() time.Time {
	return time.Now().Add(-time.Second)
}
