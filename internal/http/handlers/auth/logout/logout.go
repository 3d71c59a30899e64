// Package logout реализует HTTP-обработчик выхода из системы.
//
// Токены не хранятся на сервере и не отзываются: выход сводится
// к перезаписи cookie коротко живущим значением на стороне клиента.
package logout

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/tour-booking/internal/http/cookie"
	"github.com/magabrotheeeer/tour-booking/internal/http/response"
)

// Handler обрабатывает HTTP-запросы выхода.
type Handler struct {
	log     *slog.Logger
	cookies *cookie.Writer
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, cookies *cookie.Writer) *Handler {
	return &Handler{log: log, cookies: cookies}
}

// ServeHTTP godoc
// @Summary Выход пользователя
// @Description Гасит cookie с токеном доступа.
// @Tags Auth
// @Produce json
// @Success 200 {object} response.Response
// @Router /logout [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.logout"

	h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	).Info("logout")

	h.cookies.Clear(w)
	render.JSON(w, r, response.OK())
}
