package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/admin"
)

// Денежные значения сериализуются строкой ("19.99"), как их отдаёт decimal.

type productView struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category,omitempty"`
	Image       string          `json:"image,omitempty"`
	Stock       int             `json:"stock"`
	Rating      *float64        `json:"rating,omitempty"`
}

type productRequest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Stock       int             `json:"stock"`
	Rating      *float64        `json:"rating"`
}

func (r productRequest) toDomain() domain.CatalogItem {
	return domain.CatalogItem{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Category:    r.Category,
		Image:       r.Image,
		Stock:       r.Stock,
		Rating:      r.Rating,
	}
}

func toProductView(item domain.CatalogItem) productView {
	return productView{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Price:       item.Price,
		Category:    item.Category,
		Image:       item.Image,
		Stock:       item.Stock,
		Rating:      item.Rating,
	}
}

func toProductViews(items []domain.CatalogItem) []productView {
	views := make([]productView, 0, len(items))
	for _, item := range items {
		views = append(views, toProductView(item))
	}
	return views
}

type cartLineView struct {
	Item     productView     `json:"item"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type cartView struct {
	SessionID string          `json:"session_id"`
	Lines     []cartLineView  `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	LineCount int             `json:"line_count"`
	ItemCount int             `json:"item_count"`
}

func toCartView(sessionID string, snap cart.Snapshot) cartView {
	lines := make([]cartLineView, 0, len(snap.Lines))
	for _, line := range snap.Lines {
		lines = append(lines, cartLineView{
			Item:     toProductView(line.Item),
			Quantity: line.Quantity,
			Subtotal: line.Subtotal(),
		})
	}
	return cartView{
		SessionID: sessionID,
		Lines:     lines,
		Total:     snap.Total,
		LineCount: snap.LineCount,
		ItemCount: snap.ItemCount,
	}
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type orderLineView struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Category  string          `json:"category,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type shippingView struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}

type paymentView struct {
	Provider     string     `json:"provider"`
	Reference    string     `json:"reference,omitempty"`
	Status       string     `json:"status"`
	CardLastFour string     `json:"card_last_four,omitempty"`
	AuthorizedAt *time.Time `json:"authorized_at,omitempty"`
}

type orderView struct {
	ID            string          `json:"id"`
	CustomerEmail string          `json:"customer_email"`
	Status        string          `json:"status"`
	Total         decimal.Decimal `json:"total"`
	ItemCount     int             `json:"item_count"`
	Lines         []orderLineView `json:"lines"`
	Shipping      shippingView    `json:"shipping"`
	Payment       paymentView     `json:"payment"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toOrderView(order domain.Order) orderView {
	lines := make([]orderLineView, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineView{
			ProductID: line.ProductID,
			Name:      line.Name,
			Category:  line.Category,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Subtotal:  line.Subtotal(),
		})
	}

	payment := paymentView{
		Provider:     order.Payment.Provider,
		Reference:    order.Payment.Reference,
		Status:       string(order.Payment.Status),
		CardLastFour: order.Payment.CardLastFour,
	}
	if !order.Payment.AuthorizedAt.IsZero() {
		at := order.Payment.AuthorizedAt
		payment.AuthorizedAt = &at
	}

	return orderView{
		ID:            order.ID,
		CustomerEmail: order.CustomerEmail,
		Status:        string(order.Status),
		Total:         order.Total,
		ItemCount:     order.ItemCount(),
		Lines:         lines,
		Shipping: shippingView{
			Name:       order.Shipping.Name,
			Address:    order.Shipping.Address,
			City:       order.Shipping.City,
			PostalCode: order.Shipping.PostalCode,
		},
		Payment:       payment,
		FailureReason: order.FailureReason,
		CreatedAt:     order.CreatedAt,
	}
}

func toOrderViews(orders []domain.Order) []orderView {
	views := make([]orderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, toOrderView(order))
	}
	return views
}

type timelineEventView struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type orderDetailsView struct {
	Order    orderView           `json:"order"`
	Timeline []timelineEventView `json:"timeline"`
}

func toOrderDetailsView(details admin.OrderDetails) orderDetailsView {
	events := make([]timelineEventView, 0, len(details.Timeline))
	for _, event := range details.Timeline {
		events = append(events, timelineEventView{Type: event.Type, Reason: event.Reason, Occurred: event.Occurred})
	}
	return orderDetailsView{Order: toOrderView(details.Order), Timeline: events}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountView struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

type sessionView struct {
	Token     string      `json:"token,omitempty"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
	Account   accountView `json:"account"`
}

type categorySalesView struct {
	Category string          `json:"category"`
	Revenue  decimal.Decimal `json:"revenue"`
	Units    int             `json:"units"`
}

type productSalesView struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Revenue   decimal.Decimal `json:"revenue"`
	Units     int             `json:"units"`
}

type salesView struct {
	Revenue      decimal.Decimal     `json:"revenue"`
	OrderCount   int                 `json:"order_count"`
	ItemsSold    int                 `json:"items_sold"`
	FailedOrders int                 `json:"failed_orders"`
	AverageOrder decimal.Decimal     `json:"average_order"`
	ByCategory   []categorySalesView `json:"by_category"`
	TopProducts  []productSalesView  `json:"top_products"`
}

func toSalesView(report admin.SalesReport) salesView {
	view := salesView{
		Revenue:      report.Revenue,
		OrderCount:   report.OrderCount,
		ItemsSold:    report.ItemsSold,
		FailedOrders: report.FailedOrders,
		AverageOrder: report.AverageOrder,
		ByCategory:   make([]categorySalesView, 0, len(report.ByCategory)),
		TopProducts:  make([]productSalesView, 0, len(report.TopProducts)),
	}
	for _, c := range report.ByCategory {
		view.ByCategory = append(view.ByCategory, categorySalesView{Category: c.Category, Revenue: c.Revenue, Units: c.Units})
	}
	for _, p := range report.TopProducts {
		view.TopProducts = append(view.TopProducts, productSalesView{ProductID: p.ProductID, Name: p.Name, Revenue: p.Revenue, Units: p.Units})
	}
	return view
}

type customerView struct {
	Email       string          `json:"email"`
	Orders      int             `json:"orders"`
	TotalSpent  decimal.Decimal `json:"total_spent"`
	LastOrderAt time.Time       `json:"last_order_at"`
}

func toCustomerViews(summaries []admin.CustomerSummary) []customerView {
	views := make([]customerView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, customerView{Email: s.Email, Orders: s.Orders, TotalSpent: s.TotalSpent, LastOrderAt: s.LastOrderAt})
	}
	return views
}
