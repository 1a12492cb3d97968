package domain

import "errors"

var (
	// ErrProductNotFound возвращается, если товара нет в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductExists возвращается при попытке создать товар с занятым ID.
	ErrProductExists = errors.New("product already exists")
	// Ошибка валидации карточки товара.
	ErrInvalidProduct = errors.New("invalid product")
	// Ошибка пустого наименования товара.
	ErrProductNameRequired = errors.New("product name is required")
	// Ошибка отрицательной цены.
	ErrProductPriceNegative = errors.New("product price must be non-negative")
	// Ошибка отрицательного остатка.
	ErrProductStockNegative = errors.New("product stock must be non-negative")
	// Ошибка рейтинга вне диапазона 0..5.
	ErrProductRatingRange = errors.New("product rating must be within 0..5")

	// ErrCartNotFound возвращается, если у сессии нет сохранённой корзины.
	ErrCartNotFound = errors.New("cart not found")
	// ErrSessionRequired возвращается, если запрос пришёл без идентификатора сессии.
	ErrSessionRequired = errors.New("session id is required")
	// ErrEmptyCart возвращается при попытке оформить пустую корзину.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrCheckoutFormIncomplete возвращается, если в форме оформления не заполнены поля.
	ErrCheckoutFormIncomplete = errors.New("checkout form is incomplete")
	// ErrInsufficientStock: на складе меньше товара, чем в корзине.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPaymentDeclined: демо-платёж отклонён.
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrPaymentUnavailable: провайдер временно недоступен, повтор возможен позже.
	ErrPaymentUnavailable = errors.New("payment provider unavailable")

	// Ошибка отсутствующего email покупателя.
	ErrCustomerRequired = errors.New("customer email is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one line")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("line quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("line price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order total does not match lines sum")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderExists возвращается при повторном создании заказа с тем же ID.
	ErrOrderExists = errors.New("order already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")

	// ErrInvalidCredentials: неверная пара email/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized: запрос без действующего токена.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden: у аккаунта нет нужной роли.
	ErrForbidden = errors.New("forbidden")

	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists: ключ уже занят (запрос обрабатывается или завершён).
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch: ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	ErrIdempotencyKeyNotFound  = errors.New("idempotency key not found")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyConflict проверяет, связана ли ошибка с повторным использованием ключа.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
