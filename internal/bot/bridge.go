package bot

import "context"

// Request — обращение к диалоговому движку от имени комнаты
type Request struct {
	SessionID string
	Message   string
	CompanyID string
	UserID    string
	Category1 string
	Category2 string
}

// Bridge отдаёт ответ движка ленивой последовательностью текстовых кусков.
// Закрытие канала — единственный сигнал завершения, и он происходит ровно
// один раз при любом исходе: ошибки транспорта превращаются в последний
// текстовый кусок для пользователя, а не в panic или error наружу.
type Bridge interface {
	Ask(ctx context.Context, req Request) <-chan string
}
