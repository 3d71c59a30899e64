package models

// WelcomeMessage сообщение о регистрации нового пользователя,
// публикуется в RabbitMQ и потребляется сервисом отправки писем.
type WelcomeMessage struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	URL   string `json:"url"`
}
