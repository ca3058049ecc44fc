package api

import (
	"net/http"

	"github.com/safar/smartgrocer/internal/apperr"
	"github.com/safar/smartgrocer/internal/auth"
	"github.com/safar/smartgrocer/internal/receipt"
	"github.com/safar/smartgrocer/internal/store"
	"github.com/shopspring/decimal"
)

// orderItemBody accepts the product reference under any of the names clients have used for it.
type orderItemBody struct {
	ProductID int64 `json:"productId"`
	Product   int64 `json:"product"`
	ID        int64 `json:"id"`
	Quantity  int   `json:"quantity"`
}

func (b orderItemBody) productID() int64 {
	switch {
	case b.ProductID != 0:
		return b.ProductID
	case b.Product != 0:
		return b.Product
	default:
		return b.ID
	}
}

type placeOrderBody struct {
	CustomerID    int64           `json:"customerId"`
	OrderItems    []orderItemBody `json:"orderItems"`
	AmountPaid    decimal.Decimal `json:"amountPaid"`
	PaymentMethod string          `json:"paymentMethod"`
}

// targetUser resolves whose account a request acts on. Only roles that may bill others can name
// someone else.
func targetUser(claims *auth.Claims, requested int64) (int64, error) {
	if requested == 0 || requested == claims.UserID {
		return claims.UserID, nil
	}
	if !claims.Role.CanBillOthers() {
		return 0, apperr.Forbidden("not allowed to act for another user")
	}
	return requested, nil
}

// canView reports whether the caller may read a record owned by ownerID.
func canView(claims *auth.Claims, ownerID int64) bool {
	return claims.UserID == ownerID || claims.Role.CanManageStore()
}

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	var body placeOrderBody
	if err := decodeJSON(r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}

	customerID, err := targetUser(claimsFrom(r.Context()), body.CustomerID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	req := store.PlaceOrderRequest{
		CustomerID:    customerID,
		Items:         make([]store.OrderItemRequest, 0, len(body.OrderItems)),
		AmountPaid:    body.AmountPaid,
		PaymentMethod: body.PaymentMethod,
	}
	for _, item := range body.OrderItems {
		req.Items = append(req.Items, store.OrderItemRequest{ProductID: item.productID(), Quantity: item.Quantity})
	}

	order, err := store.PlaceOrder(r.Context(), s.db, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	requestLogger(r).WithField("order_number", order.OrderNumber).Info("Order placed")
	respondJSON(w, http.StatusCreated, order)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	page, err := store.ListOrders(r.Context(), s.db, 0,
		r.URL.Query().Get("cursor"), queryInt(r, "limit", store.DefaultPageSize))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) myOrders(w http.ResponseWriter, r *http.Request) {
	page, err := store.ListOrders(r.Context(), s.db, claimsFrom(r.Context()).UserID,
		r.URL.Query().Get("cursor"), queryInt(r, "limit", store.DefaultPageSize))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	order, err := store.GetOrder(r.Context(), s.db, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !canView(claimsFrom(r.Context()), order.CustomerID) {
		s.respondError(w, r, apperr.Forbidden("not authorized to view this order"))
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (s *Server) orderReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := r.Context()

	order, err := store.GetOrder(ctx, s.db, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !canView(claimsFrom(ctx), order.CustomerID) {
		s.respondError(w, r, apperr.Forbidden("not authorized to view this order"))
		return
	}

	customer, err := store.GetUser(ctx, s.db, order.CustomerID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	pdf, err := receipt.Render(order, customer)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+order.OrderNumber+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		requestLogger(r).WithError(err).Error("Error writing receipt")
	}
}
