// Package models содержит доменную модель пользователя сервиса бронирования туров.
// Внутренняя структура User хранит учётные данные вместе с хэшем пароля и
// полями восстановления пароля; наружу отдается только проекция PublicUser.
package models

import "time"

// Роли пользователей. Набор закрытый: любое другое значение
// отклоняется при валидации перед записью в хранилище.
const (
	RoleUser      = "user"
	RoleGuide     = "guide"
	RoleLeadGuide = "lead-guide"
	RoleAdmin     = "admin"
)

// ValidRole проверяет, что роль принадлежит закрытому набору.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin:
		return true
	}
	return false
}

// User представляет учётную запись со всеми секретными полями.
// Используется только внутри хранилища и сервисов; в HTTP-ответы не сериализуется.
type User struct {
	UID                    string     // Уникальный идентификатор пользователя
	Name                   string     // Имя пользователя
	Email                  string     // Электронная почта (хранится в нижнем регистре)
	PasswordHash           string     // bcrypt-хэш пароля
	Role                   string     // Роль пользователя
	PasswordChangedAt      *time.Time // Момент последней смены пароля
	PasswordResetTokenHash *string    // Хэш действующего токена сброса пароля
	PasswordResetExpiresAt *time.Time // Срок действия токена сброса
	IsActive               bool       // Флаг мягкого удаления
}

// PublicUser безопасная проекция учётной записи для ответов API.
type PublicUser struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Public возвращает проекцию пользователя без секретных полей.
func (u *User) Public() PublicUser {
	return PublicUser{
		UID:   u.UID,
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role,
	}
}

// PasswordChangedAfter сообщает, менялся ли пароль после момента issuedAt.
// Сравнение идет по секундам эпохи, как и метка IssuedAt в JWT.
func (u *User) PasswordChangedAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Unix() > issuedAt.Unix()
}
