package api

import (
	"till-service/internal/service"

	"github.com/shopspring/decimal"
)

type productResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
	ImageURL string `json:"imageUrl"`
	InStock  bool   `json:"inStock"`
}

type lineResponse struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Quantity  int    `json:"quantity"`
	Subtotal  string `json:"subtotal"`
}

// tillResponse is the view the presentation layer renders. Amounts are
// formatted to two decimals; Change is present only after a settled sale.
type tillResponse struct {
	Phase       service.Phase     `json:"phase"`
	SessionID   string            `json:"sessionId,omitempty"`
	Currency    string            `json:"currency"`
	Products    []productResponse `json:"products"`
	Lines       []lineResponse    `json:"lines"`
	Total       string            `json:"total"`
	CashPaid    string            `json:"cashPaid"`
	Change      *string           `json:"change,omitempty"`
	Error       string            `json:"error,omitempty"`
	Notice      string            `json:"notice,omitempty"`
	CanCheckout bool              `json:"canCheckout"`
}

func (h *Handler) render(v service.View) tillResponse {
	resp := tillResponse{
		Phase:     v.Phase,
		SessionID: v.SessionID,
		Currency:  h.currency.String(),
		Products:  make([]productResponse, 0, len(v.Products)),
		Lines:     make([]lineResponse, 0, len(v.Lines)),
		Total:     money(v.Total),
		CashPaid:  v.CashPaid,
		Error:     v.Error,
		Notice:    v.Notice,
	}

	for _, p := range v.Products {
		resp.Products = append(resp.Products, productResponse{
			ID:       p.ID,
			Name:     p.Name,
			Price:    money(p.Price),
			Quantity: p.Quantity,
			ImageURL: p.ImageURL,
			InStock:  p.Quantity > 0,
		})
	}
	for _, l := range v.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     money(l.UnitPrice),
			Quantity:  l.Quantity,
			Subtotal:  money(l.Subtotal()),
		})
	}
	if v.Change != nil {
		change := money(*v.Change)
		resp.Change = &change
	}

	resp.CanCheckout = v.Phase == service.PhaseAccumulating && len(v.Lines) > 0 && v.CashPaid != ""
	return resp
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
