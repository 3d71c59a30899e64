// Package resettoken реализует одноразовые токены сброса пароля.
//
// Открытый токен — 32 случайных байта в hex, он отправляется пользователю
// на почту и нигде не сохраняется. В базе хранится только его SHA-512 дайджест,
// поэтому утечка хранилища не раскрывает действующие токены.
package resettoken

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
)

// New генерирует открытый токен и его дайджест для хранения.
func New() (token, digest string, err error) {
	const op = "resettoken.New"
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	token = hex.EncodeToString(raw)
	return token, Hash(token), nil
}

// Hash возвращает SHA-512 hex-дайджест открытого токена.
// Предъявленный токен хэшируется тем же способом и ищется по дайджесту.
func Hash(token string) string {
	sum := sha512.Sum512([]byte(token))
	return hex.EncodeToString(sum[:])
}
