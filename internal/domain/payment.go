package domain

import "time"

// PaymentStatus описывает состояние демо-платежа.
type PaymentStatus string

const (
	// PaymentStatusPending: платёж ещё не авторизован.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusAuthorized: демо-провайдер подтвердил платёж.
	PaymentStatusAuthorized PaymentStatus = "authorized"
	// PaymentStatusDeclined: демо-провайдер отклонил платёж.
	PaymentStatusDeclined PaymentStatus = "declined"
	// PaymentStatusFailed: авторизация не состоялась (провайдер недоступен, таймаут).
	PaymentStatusFailed PaymentStatus = "failed"
)

// Payment: результат демо-авторизации. Реквизиты карты не хранятся,
// только последние четыре цифры.
type Payment struct {
	Provider     string
	Reference    string
	Status       PaymentStatus
	CardLastFour string
	AuthorizedAt time.Time
}

// CardLastFour возвращает последние четыре цифры номера карты, игнорируя пробелы и дефисы.
func CardLastFour(number string) string {
	digits := make([]byte, 0, len(number))
	for i := 0; i < len(number); i++ {
		if number[i] >= '0' && number[i] <= '9' {
			digits = append(digits, number[i])
		}
	}
	if len(digits) <= 4 {
		return string(digits)
	}
	return string(digits[len(digits)-4:])
}
