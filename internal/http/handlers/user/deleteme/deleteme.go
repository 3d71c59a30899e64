// Package deleteme реализует HTTP-обработчик деактивации собственного аккаунта.
package deleteme

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/tour-booking/internal/http/middlewarectx"
	"github.com/magabrotheeeer/tour-booking/internal/http/response"
	"github.com/magabrotheeeer/tour-booking/internal/lib/sl"
)

// Service описывает интерфейс сервиса профилей.
type Service interface {
	DeleteMe(ctx context.Context, userUID string) error
}

// Handler обрабатывает HTTP-запросы деактивации аккаунта.
type Handler struct {
	log   *slog.Logger
	users Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, users Service) *Handler {
	return &Handler{
		log:   log,
		users: users,
	}
}

// ServeHTTP godoc
// @Summary Деактивация аккаунта текущего пользователя
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 204 "Аккаунт деактивирован"
// @Failure 401 {object} response.ErrorResponse
// @Router /deleteMe [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.user.deleteme"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	user := middlewarectx.UserFromContext(r.Context())
	if user == nil {
		log.Error("no authenticated user in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("you are not logged in"))
		return
	}

	if err := h.users.DeleteMe(r.Context(), user.UID); err != nil {
		log.Error("failed to deactivate account", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	log.Info("account deactivated", slog.String("uid", user.UID))
	w.WriteHeader(http.StatusNoContent)
}
