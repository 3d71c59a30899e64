// Package tourbooking предоставляет маршруты для основного приложения.
package tourbooking

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/tour-booking/internal/http/cookie"
	"github.com/magabrotheeeer/tour-booking/internal/http/handlers/auth/forgotpassword"
	"github.com/magabrotheeeer/tour-booking/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/tour-booking/internal/http/handlers/auth/logout"
	"github.com/magabrotheeeer/tour-booking/internal/http/handlers/auth/resetpassword"
	"github.com/magabrotheeeer/tour-booking/internal/http/handlers/auth/signup"
	"github.com/magabrotheeeer/tour-booking/internal/http/handlers/auth/updatepassword"
	"github.com/magabrotheeeer/tour-booking/internal/http/handlers/health"
	"github.com/magabrotheeeer/tour-booking/internal/http/handlers/user/deleteme"
	"github.com/magabrotheeeer/tour-booking/internal/http/handlers/user/list"
	"github.com/magabrotheeeer/tour-booking/internal/http/handlers/user/me"
	"github.com/magabrotheeeer/tour-booking/internal/http/handlers/user/remove"
	"github.com/magabrotheeeer/tour-booking/internal/http/handlers/user/updateme"
	"github.com/magabrotheeeer/tour-booking/internal/http/middlewarectx"
	"github.com/magabrotheeeer/tour-booking/internal/models"
	authservice "github.com/magabrotheeeer/tour-booking/internal/services/auth"
	userservice "github.com/magabrotheeeer/tour-booking/internal/services/user"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger,
	authService *authservice.AuthService, userService *userservice.UserService,
	cookies *cookie.Writer) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	// Ограничитель на открытые маршруты аутентификации, общий на инстанс.
	authLimiter := rate.NewLimiter(rate.Limit(10), 30)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger, authLimiter))
			r.Post("/signup", signup.New(logger, authService, cookies).ServeHTTP)
			r.Post("/login", login.New(logger, authService, cookies).ServeHTTP)
			r.Get("/logout", logout.New(logger, cookies).ServeHTTP)
			r.Post("/forgotPassword", forgotpassword.New(logger, authService).ServeHTTP)
			r.Patch("/resetPassword/{token}", resetpassword.New(logger, authService, cookies).ServeHTTP)
		})

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(authService, logger))
			r.Patch("/updateMyPassword", updatepassword.New(logger, authService, cookies).ServeHTTP)
			r.Get("/me", me.New(logger, userService).ServeHTTP)
			r.Patch("/updateMe", updateme.New(logger, userService).ServeHTTP)
			r.Delete("/deleteMe", deleteme.New(logger, userService).ServeHTTP)

			// Административные маршруты
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.RequireRoles(logger, models.RoleAdmin))
				r.Get("/users", list.New(logger, userService).ServeHTTP)
				r.Delete("/users/{uid}", remove.New(logger, userService).ServeHTTP)
			})
		})
	})

	r.Get("/health", health.New(logger).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
