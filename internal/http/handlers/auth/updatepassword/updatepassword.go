// Package updatepassword реализует HTTP-обработчик смены пароля
// аутентифицированным пользователем.
//
// Текущий пароль сверяется заново, даже если запрос уже прошел
// проверку токена. После смены все ранее выпущенные токены становятся
// недействительными, поэтому в ответе возвращается свежий.
package updatepassword

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/tour-booking/internal/http/cookie"
	"github.com/magabrotheeeer/tour-booking/internal/http/middlewarectx"
	"github.com/magabrotheeeer/tour-booking/internal/http/response"
	"github.com/magabrotheeeer/tour-booking/internal/lib/sl"
	authservice "github.com/magabrotheeeer/tour-booking/internal/services/auth"
)

// Request — входные данные для смены пароля.
type Request struct {
	PasswordCurrent string `json:"passwordCurrent" validate:"required"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// Service описывает интерфейс бизнес-логики смены пароля.
type Service interface {
	UpdatePassword(ctx context.Context, userUID, currentPassword, newPassword string) (string, error)
}

// Handler обрабатывает HTTP-запросы смены пароля.
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
// @Summary Смена пароля текущим пользователем
// @Tags Auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Request true "Текущий и новый пароль"
// @Success 200 {object} response.Response "Новый токен доступа"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или ошибка валидации"
// @Failure 401 {object} response.ErrorResponse "Неверный текущий пароль"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /updateMyPassword [patch]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.updatepassword"

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

	token, err := h.auth.UpdatePassword(r.Context(), user.UID, req.PasswordCurrent, req.Password)
	if err != nil {
		if errors.Is(err, authservice.ErrWrongPassword) {
			log.Error("wrong current password", slog.String("uid", user.UID))
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error("your current password is wrong"))
			return
		}
		log.Error("password update failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	log.Info("password updated", slog.String("uid", user.UID))
	h.cookies.Set(w, token)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"token": token,
	}))
}
