package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jonatasvenancio167/shopping-cart-backend/internal/catalog"
	"github.com/jonatasvenancio167/shopping-cart-backend/internal/domain"
	"github.com/jonatasvenancio167/shopping-cart-backend/internal/repository"
)

// CartAPI is what the handlers need from the cart service.
type CartAPI interface {
	CreateCart(ctx context.Context, sessionID string, productID int64, quantity int) (*domain.Cart, error)
	AddItem(ctx context.Context, cartID string, productID int64, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, cartID string, productID int64) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, cartID string, productID int64, quantity int) (*domain.Cart, error)
	GetCart(ctx context.Context, cartID string) (*domain.Cart, error)
}

// ProductLister serves the catalog read endpoints.
type ProductLister interface {
	FindProduct(ctx context.Context, id int64) (*catalog.Product, error)
	ListProducts(ctx context.Context) ([]*catalog.Product, error)
}

type CartHandler struct {
	service CartAPI
	lister  ProductLister
	timeout time.Duration
}

func NewCartHandler(service CartAPI, lister ProductLister, timeout time.Duration) *CartHandler {
	return &CartHandler{
		service: service,
		lister:  lister,
		timeout: timeout,
	}
}

// Routes mounts the cart and catalog endpoints on a fresh router.
func (h *CartHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/cart", h.CreateCart)
	r.Post("/cart/add_item", h.AddItem)
	r.Get("/cart/{cart_id}", h.GetCart)
	r.Put("/cart/{cart_id}/items/{product_id}", h.UpdateQuantity)
	r.Delete("/cart/{cart_id}/items/{product_id}", h.RemoveItem)
	r.Get("/products", h.ListProducts)
	r.Get("/products/{product_id}", h.GetProduct)
	return r
}

type CreateCartRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type AddItemRequestDTO struct {
	CartID    string `json:"cart_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartItemDTO struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"total_price"`
}

type CartResponseDTO struct {
	ID         string        `json:"id"`
	Products   []CartItemDTO `json:"products"`
	TotalPrice float64       `json:"total_price"`
}

type ProductDTO struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// CreateCart returns the session's cart, creating it if needed; an optional
// product in the body is added in the same request. A missing session id is
// generated here and echoed back in the X-Session-ID header.
func (h *CartHandler) CreateCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := r.Header.Get("X-Session-ID")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	w.Header().Set("X-Session-ID", sessionID)

	var req CreateCartRequestDTO
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
	}
	if req.ProductID != 0 && req.Quantity == 0 {
		req.Quantity = 1
	}

	cart, err := h.service.CreateCart(ctx, sessionID, req.ProductID, req.Quantity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, convertCart(cart))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.CartID == "" {
		respondError(w, http.StatusBadRequest, "invalid_cart_id", "cart_id is required")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	cart, err := h.service.AddItem(ctx, req.CartID, req.ProductID, req.Quantity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, convertCart(cart))
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cartID := chi.URLParam(r, "cart_id")

	cart, err := h.service.GetCart(ctx, cartID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertCart(cart))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cartID := chi.URLParam(r, "cart_id")
	productID, err := parseProductID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	cart, err := h.service.UpdateQuantity(ctx, cartID, productID, req.Quantity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertCart(cart))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cartID := chi.URLParam(r, "cart_id")
	productID, err := parseProductID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	cart, err := h.service.RemoveItem(ctx, cartID, productID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertCart(cart))
}

func (h *CartHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.lister.ListProducts(ctx)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = convertProduct(p)
	}
	respondJSON(w, http.StatusOK, dtos)
}

func (h *CartHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, err := parseProductID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	product, err := h.lister.FindProduct(ctx, productID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertProduct(product))
}

func parseProductID(r *http.Request) (int64, error) {
	productIDStr := chi.URLParam(r, "product_id")
	productID, err := strconv.ParseInt(productIDStr, 10, 64)
	if err != nil || productID <= 0 {
		return 0, errors.New("invalid product id")
	}
	return productID, nil
}

func convertCart(c *domain.Cart) CartResponseDTO {
	resp := CartResponseDTO{
		ID:         c.ID,
		Products:   make([]CartItemDTO, len(c.Items)),
		TotalPrice: c.TotalPrice.InexactFloat64(),
	}

	for i, item := range c.Items {
		resp.Products[i] = CartItemDTO{
			ID:        item.ProductID,
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.InexactFloat64(),
			LineTotal: item.LineTotal().InexactFloat64(),
		}
	}

	return resp
}

func convertProduct(p *catalog.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.InexactFloat64(),
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func handleServiceError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError

	switch {
	case errors.As(err, &validationErr):
		respondError(w, http.StatusUnprocessableEntity, "validation_error", validationErr.Error())
	case errors.Is(err, repository.ErrCartNotFound):
		respondError(w, http.StatusNotFound, "cart_not_found", "cart not found")
	case errors.Is(err, catalog.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", "product not found")
	case errors.Is(err, domain.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "item_not_found", "product not found in cart")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		log.Printf("unhandled service error: %v", err)
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "temporary failure, try again")
	}
}
