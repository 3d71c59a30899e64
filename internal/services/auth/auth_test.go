package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	customjwt "github.com/magabrotheeeer/tour-booking/internal/lib/jwt"
	"github.com/magabrotheeeer/tour-booking/internal/lib/password"
	"github.com/magabrotheeeer/tour-booking/internal/models"
	services "github.com/magabrotheeeer/tour-booking/internal/services/auth"
	"github.com/magabrotheeeer/tour-booking/internal/storage"
)

// Мок для UserRepository
type UserRepoMock struct {
	mock.Mock
}

func (m *UserRepoMock) RegisterUser(ctx context.Context, user models.User) (string, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Error(1)
}

func (m *UserRepoMock) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) GetUserByUID(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) GetUserByResetTokenHash(ctx context.Context, tokenHash string) (*models.User, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) SetResetToken(ctx context.Context, userUID, tokenHash string, expiresAt time.Time) error {
	args := m.Called(ctx, userUID, tokenHash, expiresAt)
	return args.Error(0)
}

func (m *UserRepoMock) ClearResetToken(ctx context.Context, userUID string) error {
	args := m.Called(ctx, userUID)
	return args.Error(0)
}

func (m *UserRepoMock) UpdatePassword(ctx context.Context, userUID, passwordHash string, changedAt time.Time) error {
	args := m.Called(ctx, userUID, passwordHash, changedAt)
	return args.Error(0)
}

// Мок для jwt.Maker
type JwtMakerMock struct {
	mock.Mock
}

func (m *JwtMakerMock) GenerateToken(userUID string) (string, error) {
	args := m.Called(userUID)
	return args.String(0), args.Error(1)
}

func (m *JwtMakerMock) ParseToken(token string) (*customjwt.Claims, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customjwt.Claims), args.Error(1)
}

// Мок для ResetMailer
type MailerMock struct {
	mock.Mock
}

func (m *MailerMock) SendPasswordReset(name, email, resetURL string) error {
	args := m.Called(name, email, resetURL)
	return args.Error(0)
}

// Мок для WelcomePublisher
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(routingKey string, message any) error {
	args := m.Called(routingKey, message)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

const publicURL = "https://tours.example.com"

func newService(repo *UserRepoMock, jwtMock *JwtMakerMock, mailer *MailerMock, publisher *PublisherMock) *services.AuthService {
	return services.NewAuthService(repo, jwtMock, mailer, publisher, publicURL, newNoopLogger())
}

func claimsFor(userUID string, issuedAt time.Time) *customjwt.Claims {
	return &customjwt.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userUID,
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
	}
}

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(r *UserRepoMock, j *JwtMakerMock, p *PublisherMock)
		wantToken  string
		wantErr    bool
	}{
		{
			name: "successful registration",
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock, p *PublisherMock) {
				r.On("RegisterUser", mock.Anything, mock.MatchedBy(func(user models.User) bool {
					return user.Email == "test@example.com" &&
						user.Name == "Test User" &&
						user.PasswordHash != "" &&
						user.PasswordHash != "password123" &&
						user.Role == models.RoleUser &&
						user.IsActive
				})).Return("uid-1", nil).Once()
				p.On("Publish", "welcome", mock.MatchedBy(func(msg models.WelcomeMessage) bool {
					return msg.Email == "test@example.com" && msg.URL == publicURL+"/me"
				})).Return(nil).Once()
				j.On("GenerateToken", "uid-1").Return("access-token", nil).Once()
			},
			wantToken: "access-token",
		},
		{
			name: "repository error",
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock, p *PublisherMock) {
				r.On("RegisterUser", mock.Anything, mock.Anything).Return("", errors.New("db error")).Once()
			},
			wantErr: true,
		},
		{
			name: "publish failure does not break registration",
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock, p *PublisherMock) {
				r.On("RegisterUser", mock.Anything, mock.Anything).Return("uid-2", nil).Once()
				p.On("Publish", "welcome", mock.Anything).Return(errors.New("broker down")).Once()
				j.On("GenerateToken", "uid-2").Return("access-token-2", nil).Once()
			},
			wantToken: "access-token-2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(UserRepoMock)
			jwtMock := new(JwtMakerMock)
			mailer := new(MailerMock)
			publisher := new(PublisherMock)
			svc := newService(repo, jwtMock, mailer, publisher)

			tt.setupMocks(repo, jwtMock, publisher)

			token, public, err := svc.Register(context.Background(), "Test User", "test@example.com", "password123")
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, token)
				assert.Nil(t, public)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantToken, token)
				require.NotNil(t, public)
				assert.Equal(t, "test@example.com", public.Email)
				assert.Equal(t, models.RoleUser, public.Role)
			}

			repo.AssertExpectations(t)
			publisher.AssertExpectations(t)
			jwtMock.AssertExpectations(t)
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	rawPassword := "correctpassword"
	hashed, err := password.GetHash(rawPassword)
	require.NoError(t, err)

	user := &models.User{
		UID:          "uid-1",
		Name:         "Test User",
		Email:        "test@example.com",
		PasswordHash: hashed,
		Role:         models.RoleUser,
		IsActive:     true,
	}

	tests := []struct {
		name       string
		email      string
		password   string
		setupMocks func(r *UserRepoMock, j *JwtMakerMock)
		wantToken  string
		wantErr    error
	}{
		{
			name:     "successful login",
			email:    "test@example.com",
			password: rawPassword,
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock) {
				r.On("GetUserByEmail", mock.Anything, "test@example.com").Return(user, nil).Once()
				j.On("GenerateToken", "uid-1").Return("access-token", nil).Once()
			},
			wantToken: "access-token",
		},
		{
			name:     "unknown email",
			email:    "missing@example.com",
			password: rawPassword,
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock) {
				r.On("GetUserByEmail", mock.Anything, "missing@example.com").Return(nil, storage.ErrUserNotFound).Once()
			},
			wantErr: services.ErrInvalidCredentials,
		},
		{
			name:     "wrong password",
			email:    "test@example.com",
			password: "wrongpassword",
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock) {
				r.On("GetUserByEmail", mock.Anything, "test@example.com").Return(user, nil).Once()
			},
			wantErr: services.ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(UserRepoMock)
			jwtMock := new(JwtMakerMock)
			svc := newService(repo, jwtMock, new(MailerMock), new(PublisherMock))

			tt.setupMocks(repo, jwtMock)

			token, public, err := svc.Login(context.Background(), tt.email, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, token)
				assert.Nil(t, public)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantToken, token)
				require.NotNil(t, public)
				assert.Equal(t, user.Email, public.Email)
			}

			repo.AssertExpectations(t)
			jwtMock.AssertExpectations(t)
		})
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	now := time.Now()
	changedEarlier := now.Add(-time.Hour)
	changedLater := now.Add(time.Hour)

	tests := []struct {
		name       string
		setupMocks func(r *UserRepoMock, j *JwtMakerMock)
		wantErr    error
	}{
		{
			name: "valid token",
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock) {
				j.On("ParseToken", "token").Return(claimsFor("uid-1", now), nil).Once()
				r.On("GetUserByUID", mock.Anything, "uid-1").Return(&models.User{
					UID:               "uid-1",
					PasswordChangedAt: &changedEarlier,
					IsActive:          true,
				}, nil).Once()
			},
		},
		{
			name: "invalid token",
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock) {
				j.On("ParseToken", "token").Return(nil, customjwt.ErrTokenInvalid).Once()
			},
			wantErr: customjwt.ErrTokenInvalid,
		},
		{
			name: "account no longer exists",
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock) {
				j.On("ParseToken", "token").Return(claimsFor("uid-1", now), nil).Once()
				r.On("GetUserByUID", mock.Anything, "uid-1").Return(nil, storage.ErrUserNotFound).Once()
			},
			wantErr: services.ErrAccountGone,
		},
		{
			name: "password changed after token was issued",
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock) {
				j.On("ParseToken", "token").Return(claimsFor("uid-1", now), nil).Once()
				r.On("GetUserByUID", mock.Anything, "uid-1").Return(&models.User{
					UID:               "uid-1",
					PasswordChangedAt: &changedLater,
					IsActive:          true,
				}, nil).Once()
			},
			wantErr: services.ErrStaleToken,
		},
		{
			name: "never changed password is not stale",
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock) {
				j.On("ParseToken", "token").Return(claimsFor("uid-1", now), nil).Once()
				r.On("GetUserByUID", mock.Anything, "uid-1").Return(&models.User{
					UID:      "uid-1",
					IsActive: true,
				}, nil).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(UserRepoMock)
			jwtMock := new(JwtMakerMock)
			svc := newService(repo, jwtMock, new(MailerMock), new(PublisherMock))

			tt.setupMocks(repo, jwtMock)

			user, err := svc.Authenticate(context.Background(), "token")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
			} else {
				assert.NoError(t, err)
				require.NotNil(t, user)
				assert.Equal(t, "uid-1", user.UID)
			}

			repo.AssertExpectations(t)
			jwtMock.AssertExpectations(t)
		})
	}
}

func TestAuthService_ForgotPassword(t *testing.T) {
	user := &models.User{
		UID:      "uid-1",
		Name:     "Test User",
		Email:    "test@example.com",
		IsActive: true,
	}

	t.Run("successful reset email", func(t *testing.T) {
		repo := new(UserRepoMock)
		mailer := new(MailerMock)
		svc := newService(repo, new(JwtMakerMock), mailer, new(PublisherMock))

		var storedDigest string
		repo.On("GetUserByEmail", mock.Anything, "test@example.com").Return(user, nil).Once()
		repo.On("SetResetToken", mock.Anything, "uid-1", mock.AnythingOfType("string"),
			mock.MatchedBy(func(expiresAt time.Time) bool {
				return time.Until(expiresAt) > 9*time.Minute && time.Until(expiresAt) <= services.ResetTokenTTL
			})).Run(func(args mock.Arguments) {
			storedDigest = args.String(2)
		}).Return(nil).Once()
		mailer.On("SendPasswordReset", "Test User", "test@example.com",
			mock.MatchedBy(func(url string) bool {
				return strings.HasPrefix(url, publicURL+"/api/v1/resetPassword/")
			})).Return(nil).Once()

		err := svc.ForgotPassword(context.Background(), "test@example.com")
		assert.NoError(t, err)

		// В ссылке уходит открытый токен, в базе остается только дайджест.
		mailer.AssertExpectations(t)
		repo.AssertExpectations(t)
		sentURL := mailer.Calls[0].Arguments.String(2)
		plainToken := strings.TrimPrefix(sentURL, publicURL+"/api/v1/resetPassword/")
		assert.NotEqual(t, plainToken, storedDigest)
		assert.NotContains(t, sentURL, storedDigest)
	})

	t.Run("unknown email", func(t *testing.T) {
		repo := new(UserRepoMock)
		svc := newService(repo, new(JwtMakerMock), new(MailerMock), new(PublisherMock))

		repo.On("GetUserByEmail", mock.Anything, "missing@example.com").Return(nil, storage.ErrUserNotFound).Once()

		err := svc.ForgotPassword(context.Background(), "missing@example.com")
		assert.ErrorIs(t, err, storage.ErrUserNotFound)
		repo.AssertExpectations(t)
	})

	t.Run("delivery failure rolls back reset state", func(t *testing.T) {
		repo := new(UserRepoMock)
		mailer := new(MailerMock)
		svc := newService(repo, new(JwtMakerMock), mailer, new(PublisherMock))

		repo.On("GetUserByEmail", mock.Anything, "test@example.com").Return(user, nil).Once()
		repo.On("SetResetToken", mock.Anything, "uid-1", mock.Anything, mock.Anything).Return(nil).Once()
		mailer.On("SendPasswordReset", mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("smtp down")).Once()
		repo.On("ClearResetToken", mock.Anything, "uid-1").Return(nil).Once()

		err := svc.ForgotPassword(context.Background(), "test@example.com")
		assert.ErrorIs(t, err, services.ErrEmailDelivery)
		repo.AssertExpectations(t)
		mailer.AssertExpectations(t)
	})
}

func TestAuthService_ResetPassword(t *testing.T) {
	validUntil := time.Now().Add(5 * time.Minute)
	expiredAt := time.Now().Add(-time.Minute)

	t.Run("successful reset", func(t *testing.T) {
		repo := new(UserRepoMock)
		jwtMock := new(JwtMakerMock)
		svc := newService(repo, jwtMock, new(MailerMock), new(PublisherMock))

		user := &models.User{
			UID:                    "uid-1",
			Email:                  "test@example.com",
			PasswordResetExpiresAt: &validUntil,
			IsActive:               true,
		}
		repo.On("GetUserByResetTokenHash", mock.Anything, mock.AnythingOfType("string")).Return(user, nil).Once()
		repo.On("UpdatePassword", mock.Anything, "uid-1", mock.AnythingOfType("string"),
			mock.MatchedBy(func(changedAt time.Time) bool {
				// Момент смены сдвигается на секунду назад относительно "сейчас".
				return changedAt.Before(time.Now())
			})).Return(nil).Once()
		jwtMock.On("GenerateToken", "uid-1").Return("fresh-token", nil).Once()

		token, public, err := svc.ResetPassword(context.Background(), "plain-token", "newpassword1")
		assert.NoError(t, err)
		assert.Equal(t, "fresh-token", token)
		require.NotNil(t, public)
		assert.Equal(t, "test@example.com", public.Email)

		repo.AssertExpectations(t)
		jwtMock.AssertExpectations(t)
	})

	t.Run("unknown token", func(t *testing.T) {
		repo := new(UserRepoMock)
		svc := newService(repo, new(JwtMakerMock), new(MailerMock), new(PublisherMock))

		repo.On("GetUserByResetTokenHash", mock.Anything, mock.Anything).Return(nil, storage.ErrUserNotFound).Once()

		token, public, err := svc.ResetPassword(context.Background(), "bogus", "newpassword1")
		assert.ErrorIs(t, err, services.ErrResetTokenNotFound)
		assert.Empty(t, token)
		assert.Nil(t, public)
	})

	t.Run("expired token", func(t *testing.T) {
		repo := new(UserRepoMock)
		svc := newService(repo, new(JwtMakerMock), new(MailerMock), new(PublisherMock))

		user := &models.User{
			UID:                    "uid-1",
			PasswordResetExpiresAt: &expiredAt,
			IsActive:               true,
		}
		repo.On("GetUserByResetTokenHash", mock.Anything, mock.Anything).Return(user, nil).Once()

		token, public, err := svc.ResetPassword(context.Background(), "plain-token", "newpassword1")
		assert.ErrorIs(t, err, services.ErrResetTokenExpired)
		assert.Empty(t, token)
		assert.Nil(t, public)
		// Пароль не меняется и токен сброса не трогается.
		repo.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "ClearResetToken", mock.Anything, mock.Anything)
	})

	t.Run("token elapsed a moment ago", func(t *testing.T) {
		repo := new(UserRepoMock)
		svc := newService(repo, new(JwtMakerMock), new(MailerMock), new(PublisherMock))

		// Срок истёк на наносекунду: токен уже недействителен.
		justElapsed := time.Now().Add(-time.Nanosecond)
		user := &models.User{
			UID:                    "uid-1",
			PasswordResetExpiresAt: &justElapsed,
			IsActive:               true,
		}
		repo.On("GetUserByResetTokenHash", mock.Anything, mock.Anything).Return(user, nil).Once()

		token, public, err := svc.ResetPassword(context.Background(), "plain-token", "newpassword1")
		assert.ErrorIs(t, err, services.ErrResetTokenExpired)
		assert.Empty(t, token)
		assert.Nil(t, public)
		repo.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("token at the edge of expiry still accepted", func(t *testing.T) {
		repo := new(UserRepoMock)
		jwtMock := new(JwtMakerMock)
		svc := newService(repo, jwtMock, new(MailerMock), new(PublisherMock))

		// Токен считается истёкшим только строго после срока,
		// поэтому срок, ещё не наступивший, проходит проверку.
		almostExpired := time.Now().Add(200 * time.Millisecond)
		user := &models.User{
			UID:                    "uid-1",
			Email:                  "test@example.com",
			PasswordResetExpiresAt: &almostExpired,
			IsActive:               true,
		}
		repo.On("GetUserByResetTokenHash", mock.Anything, mock.Anything).Return(user, nil).Once()
		repo.On("UpdatePassword", mock.Anything, "uid-1", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
			Return(nil).Once()
		jwtMock.On("GenerateToken", "uid-1").Return("fresh-token", nil).Once()

		token, public, err := svc.ResetPassword(context.Background(), "plain-token", "newpassword1")
		assert.NoError(t, err)
		assert.Equal(t, "fresh-token", token)
		require.NotNil(t, public)

		repo.AssertExpectations(t)
		jwtMock.AssertExpectations(t)
	})
}

func TestAuthService_UpdatePassword(t *testing.T) {
	currentPassword := "currentpassword"
	hashed, err := password.GetHash(currentPassword)
	require.NoError(t, err)

	user := &models.User{
		UID:          "uid-1",
		PasswordHash: hashed,
		IsActive:     true,
	}

	t.Run("successful change", func(t *testing.T) {
		repo := new(UserRepoMock)
		jwtMock := new(JwtMakerMock)
		svc := newService(repo, jwtMock, new(MailerMock), new(PublisherMock))

		repo.On("GetUserByUID", mock.Anything, "uid-1").Return(user, nil).Once()
		repo.On("UpdatePassword", mock.Anything, "uid-1", mock.AnythingOfType("string"), mock.Anything).Return(nil).Once()
		jwtMock.On("GenerateToken", "uid-1").Return("fresh-token", nil).Once()

		token, err := svc.UpdatePassword(context.Background(), "uid-1", currentPassword, "newpassword1")
		assert.NoError(t, err)
		assert.Equal(t, "fresh-token", token)
		repo.AssertExpectations(t)
	})

	t.Run("wrong current password", func(t *testing.T) {
		repo := new(UserRepoMock)
		svc := newService(repo, new(JwtMakerMock), new(MailerMock), new(PublisherMock))

		repo.On("GetUserByUID", mock.Anything, "uid-1").Return(user, nil).Once()

		token, err := svc.UpdatePassword(context.Background(), "uid-1", "wrongpassword", "newpassword1")
		assert.ErrorIs(t, err, services.ErrWrongPassword)
		assert.Empty(t, token)
		repo.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
