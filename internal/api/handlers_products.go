package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/safar/smartgrocer/internal/models"
	"github.com/safar/smartgrocer/internal/notify"
	"github.com/safar/smartgrocer/internal/store"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := store.ListProducts(r.Context(), s.db, r.URL.Query().Get("keyword"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (s *Server) lowStockProducts(w http.ResponseWriter, r *http.Request) {
	products, err := store.ListLowStockProducts(r.Context(), s.db)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	product, err := store.GetProduct(r.Context(), s.db, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string              `json:"name"`
		Category      string              `json:"category"`
		Price         decimal.Decimal     `json:"price"`
		OriginalPrice decimal.NullDecimal `json:"originalPrice"`
		Stock         int                 `json:"stock"`
		Unit          string              `json:"unit"`
		Description   string              `json:"description"`
		ImageURL      string              `json:"imageUrl"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	product, err := store.CreateProduct(r.Context(), s.db, store.CreateProductRequest{
		Name:          req.Name,
		Category:      req.Category,
		Price:         req.Price,
		OriginalPrice: req.OriginalPrice,
		Stock:         req.Stock,
		Unit:          req.Unit,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req struct {
		Name        *string          `json:"name"`
		Category    *string          `json:"category"`
		Price       *decimal.Decimal `json:"price"`
		Stock       *int             `json:"stock"`
		Unit        *string          `json:"unit"`
		Description *string          `json:"description"`
		ImageURL    *string          `json:"imageUrl"`
		IsActive    *bool            `json:"isActive"`
		Version     int              `json:"version"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	product, err := store.UpdateProduct(r.Context(), s.db, id, store.UpdateProductRequest{
		Name:        req.Name,
		Category:    req.Category,
		Price:       req.Price,
		Stock:       req.Stock,
		Unit:        req.Unit,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		IsActive:    req.IsActive,
		Version:     req.Version,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := store.DeactivateProduct(r.Context(), s.db, id); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, messageBody{Message: "Product removed"})
}

func (s *Server) applyDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	product, err := store.ApplyDiscount(r.Context(), s.db, id, req.Price)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	go s.announceDiscount(*product)

	respondJSON(w, http.StatusOK, product)
}

func (s *Server) clearDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	product, err := store.ClearDiscount(r.Context(), s.db, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

// announceDiscount tells every reachable customer about a new price. It runs detached from the
// request and only logs failures.
func (s *Server) announceDiscount(product models.Product) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	logger := log.WithField("product_id", product.ID)

	recipients, err := store.ListPromotionRecipients(ctx, s.db)
	if err != nil {
		logger.WithError(err).Error("Failed to load promotion recipients")
		return
	}

	msg := notify.Message{
		Title: "Price drop: " + product.Name,
		Body: fmt.Sprintf("%s is now %s (was %s).",
			product.Name, product.Price.StringFixed(2), product.OriginalPrice.Decimal.StringFixed(2)),
	}

	sent := 0
	for _, user := range recipients {
		msg.Token = *user.NotificationToken
		if err := s.sender.Send(ctx, msg); err != nil {
			logger.WithError(err).WithField("user_id", user.ID).Warn("Promotion delivery failed")
			continue
		}
		sent++

		err := store.CreateNotification(ctx, s.db, &models.Notification{
			UserID:  user.ID,
			Title:   msg.Title,
			Message: msg.Body,
			Type:    models.NotificationPromotion,
		})
		if err != nil {
			logger.WithError(err).WithField("user_id", user.ID).Error("Failed to log promotion")
		}
	}

	logger.WithField("sent", sent).Info("Discount announced")
}
