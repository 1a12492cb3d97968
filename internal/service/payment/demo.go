// Package payment содержит демонстрационного платёжного провайдера.
// Деньги не списываются, реквизиты карты не сохраняются.
package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ProviderName: имя демо-провайдера в заказах.
const ProviderName = "demo"

// DeclineSuffix: карты, оканчивающиеся на эти цифры, отклоняются (тестовые сценарии).
const DeclineSuffix = "0002"

// DemoService авторизует любой платёж, кроме карт с DeclineSuffix.
type DemoService struct {
	now func() time.Time
}

// NewDemoService создаёт демо-провайдера.
func NewDemoService() *DemoService {
	return &DemoService{now: time.Now}
}

// Authorize имитирует авторизацию платежа.
func (s *DemoService) Authorize(_ context.Context, _ string, _ decimal.Decimal, cardNumber string) (domain.Payment, error) {
	p := domain.Payment{
		Provider:     ProviderName,
		Reference:    uuid.NewString(),
		CardLastFour: domain.CardLastFour(cardNumber),
	}
	if p.CardLastFour == DeclineSuffix {
		p.Status = domain.PaymentStatusDeclined
		return p, domain.ErrPaymentDeclined
	}
	p.Status = domain.PaymentStatusAuthorized
	p.AuthorizedAt = s.now().UTC()
	return p, nil
}

var _ domain.PaymentService = (*DemoService)(nil)
