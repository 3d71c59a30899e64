// Package middlewarectx содержит HTTP middleware для проверки токена доступа
// и контроля ролей.
//
// JWTMiddleware извлекает токен из заголовка Authorization или из cookie,
// проверяет его через сервис аутентификации и кладет найденного пользователя
// в контекст запроса. RequireRoles пропускает дальше только пользователей
// с ролью из разрешенного набора и применяется строго после JWTMiddleware.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/tour-booking/internal/http/cookie"
	"github.com/magabrotheeeer/tour-booking/internal/http/response"
	"github.com/magabrotheeeer/tour-booking/internal/lib/sl"
	"github.com/magabrotheeeer/tour-booking/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// UserKey — ключ для аутентифицированного пользователя в контексте.
const UserKey Key = "user"

// Service описывает интерфейс сервиса для проверки токена доступа.
type Service interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// UserFromContext возвращает пользователя, положенного в контекст
// JWTMiddleware, либо nil, если аутентификации не было.
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(UserKey).(*models.User)
	return user
}

// extractToken достает токен из заголовка Authorization: Bearer <token>,
// иначе из cookie "jwt". Пустая строка — токена нет.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if c, err := r.Cookie(cookie.Name); err == nil {
		return c.Value
	}
	return ""
}

// JWTMiddleware возвращает HTTP middleware, который требует действительный
// токен доступа. Любая причина отказа (нет токена, плохая подпись, истёкший
// или устаревший после смены пароля токен, пропавшая учётная запись)
// дает HTTP 401 Unauthorized.
func JWTMiddleware(authService Service, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			tokenStr := extractToken(r)
			if tokenStr == "" {
				log.Error("missing authorization token")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("you are not logged in"))
				return
			}

			user, err := authService.Authenticate(r.Context(), tokenStr)
			if err != nil {
				log.Error("authentication failed", sl.Err(err))
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalJWTMiddleware работает как JWTMiddleware, но при любой ошибке
// пропускает запрос дальше без пользователя в контексте. Используется
// для страниц, которые выглядят иначе для вошедших пользователей.
func OptionalJWTMiddleware(authService Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := extractToken(r)
			if tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, err := authService.Authenticate(r.Context(), tokenStr)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles возвращает middleware, которое пускает дальше только
// пользователей с ролью из allowedRoles. Отсутствие пользователя в
// контексте — ошибка применения (middleware стоит до JWTMiddleware)
// и дает 401; несовпадение роли дает 403.
func RequireRoles(log *slog.Logger, allowedRoles ...string) func(http.Handler) http.Handler {
	roles := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		roles[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.RequireRoles"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			user := UserFromContext(r.Context())
			if user == nil {
				log.Error("no authenticated user in context")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("you are not logged in"))
				return
			}

			if _, ok := roles[user.Role]; !ok {
				log.Error("insufficient role", slog.String("role", user.Role))
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error("you do not have permission to perform this action"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
