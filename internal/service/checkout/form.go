package checkout

import (
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Form: поля формы оформления заказа. Проверяется только заполненность.
type Form struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	CardNumber string `json:"card_number"`
	CardExpiry string `json:"card_expiry"`
	CardCVC    string `json:"card_cvc"`
}

// Missing возвращает имена незаполненных полей в порядке формы.
func (f Form) Missing() []string {
	fields := []struct {
		name  string
		value string
	}{
		{"name", f.Name},
		{"email", f.Email},
		{"address", f.Address},
		{"city", f.City},
		{"postal_code", f.PostalCode},
		{"card_number", f.CardNumber},
		{"card_expiry", f.CardExpiry},
		{"card_cvc", f.CardCVC},
	}

	var missing []string
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

// Validate возвращает ErrCheckoutFormIncomplete со списком пустых полей.
func (f Form) Validate() error {
	missing := f.Missing()
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: missing %s", domain.ErrCheckoutFormIncomplete, strings.Join(missing, ", "))
}

// Shipping переносит адрес доставки в заказ.
func (f Form) Shipping() domain.ShippingAddress {
	return domain.ShippingAddress{
		Name:       strings.TrimSpace(f.Name),
		Address:    strings.TrimSpace(f.Address),
		City:       strings.TrimSpace(f.City),
		PostalCode: strings.TrimSpace(f.PostalCode),
	}
}
