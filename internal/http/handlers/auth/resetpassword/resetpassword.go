// Package resetpassword реализует HTTP-обработчик установки нового пароля
// по одноразовому токену из письма.
//
// Токен приходит в пути запроса; несуществующий токен дает 400,
// истёкший — 401. Успешный сброс сразу выпускает новый токен доступа.
package resetpassword

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/tour-booking/internal/http/cookie"
	"github.com/magabrotheeeer/tour-booking/internal/http/response"
	"github.com/magabrotheeeer/tour-booking/internal/lib/sl"
	"github.com/magabrotheeeer/tour-booking/internal/models"
	authservice "github.com/magabrotheeeer/tour-booking/internal/services/auth"
)

// Request — входные данные для установки нового пароля.
type Request struct {
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// Service описывает интерфейс бизнес-логики сброса пароля.
type Service interface {
	ResetPassword(ctx context.Context, token, newPassword string) (string, *models.PublicUser, error)
}

// Handler обрабатывает HTTP-запросы установки нового пароля.
type Handler struct {
	log      *slog.Logger
	auth     Service
	cookies  *cookie.Writer
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, auth Service, cookies *cookie.Writer) *Handler {
	return &Handler{
		log:      log,
		auth:     auth,
		cookies:  cookies,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Установка нового пароля по токену сброса
// @Tags Auth
// @Accept json
// @Produce json
// @Param token path string true "Токен сброса из письма"
// @Param request body Request true "Новый пароль"
// @Success 200 {object} response.Response "Новый токен доступа"
// @Failure 400 {object} response.ErrorResponse "Токен не найден или ошибка валидации"
// @Failure 401 {object} response.ErrorResponse "Срок действия токена истёк"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /resetPassword/{token} [patch]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.resetpassword"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	token := chi.URLParam(r, "token")
	if token == "" {
		log.Error("missing reset token in path")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("reset token is missing"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	accessToken, user, err := h.auth.ResetPassword(r.Context(), token, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, authservice.ErrResetTokenNotFound):
			log.Error("reset token not found")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("token is invalid"))
		case errors.Is(err, authservice.ErrResetTokenExpired):
			log.Error("reset token expired")
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error("token has expired, restart the process"))
		default:
			log.Error("reset password failed", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal server error"))
		}
		return
	}

	log.Info("password reset", slog.String("uid", user.UID))
	h.cookies.Set(w, accessToken)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"token": accessToken,
		"user":  user,
	}))
}
