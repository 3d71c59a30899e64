// Package cookie управляет cookie с токеном доступа.
//
// Токен передается либо в заголовке Authorization, либо в httpOnly cookie
// с именем "jwt"; флаг Secure выставляется только в боевом окружении.
package cookie

import (
	"net/http"
	"time"
)

// Name имя cookie с токеном доступа.
const Name = "jwt"

// Writer выставляет и гасит cookie с токеном доступа.
type Writer struct {
	ttl    time.Duration
	secure bool
}

// NewWriter создает Writer с временем жизни cookie и флагом Secure.
func NewWriter(ttl time.Duration, secure bool) *Writer {
	return &Writer{ttl: ttl, secure: secure}
}

// Set выставляет httpOnly cookie с токеном доступа.
func (cw *Writer) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     Name,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(cw.ttl),
		HttpOnly: true,
		Secure:   cw.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear перезаписывает cookie коротко живущим пустым значением.
// Токен не отзывается на сервере, выход из системы — дело клиента.
func (cw *Writer) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     Name,
		Value:    "logged-out",
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Second),
		HttpOnly: true,
		Secure:   cw.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
