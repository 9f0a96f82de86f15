package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonatasvenancio167/shopping-cart-backend/internal/catalog"
	"github.com/jonatasvenancio167/shopping-cart-backend/internal/domain"
	"github.com/jonatasvenancio167/shopping-cart-backend/internal/repository"
)

type mockCartAPI struct {
	cart *domain.Cart
	err  error

	lastSessionID string
	lastCartID    string
	lastProductID int64
	lastQuantity  int
}

func (m *mockCartAPI) CreateCart(_ context.Context, sessionID string, productID int64, quantity int) (*domain.Cart, error) {
	m.lastSessionID = sessionID
	m.lastProductID = productID
	m.lastQuantity = quantity
	return m.cart, m.err
}

func (m *mockCartAPI) AddItem(_ context.Context, cartID string, productID int64, quantity int) (*domain.Cart, error) {
	m.lastCartID = cartID
	m.lastProductID = productID
	m.lastQuantity = quantity
	return m.cart, m.err
}

func (m *mockCartAPI) RemoveItem(_ context.Context, cartID string, productID int64) (*domain.Cart, error) {
	m.lastCartID = cartID
	m.lastProductID = productID
	return m.cart, m.err
}

func (m *mockCartAPI) UpdateQuantity(_ context.Context, cartID string, productID int64, quantity int) (*domain.Cart, error) {
	m.lastCartID = cartID
	m.lastProductID = productID
	m.lastQuantity = quantity
	return m.cart, m.err
}

func (m *mockCartAPI) GetCart(_ context.Context, cartID string) (*domain.Cart, error) {
	m.lastCartID = cartID
	return m.cart, m.err
}

type mockLister struct {
	products []*catalog.Product
	err      error
}

func (m *mockLister) FindProduct(_ context.Context, id int64) (*catalog.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, catalog.ErrProductNotFound
}

func (m *mockLister) ListProducts(context.Context) ([]*catalog.Product, error) {
	return m.products, m.err
}

func sampleCart() *domain.Cart {
	cart, _ := domain.NewCart("session-1")
	cart.ID = "cart-1"
	_ = cart.AddProduct(1, "Wireless Mouse", decimal.RequireFromString("10.00"), 2)
	_ = cart.AddProduct(2, "Mechanical Keyboard", decimal.RequireFromString("20.00"), 1)
	return cart
}

func serveRequest(api *mockCartAPI, lister ProductLister, req *http.Request) *httptest.ResponseRecorder {
	h := NewCartHandler(api, lister, time.Second)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) CartResponseDTO {
	t.Helper()
	var dto CartResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&dto))
	return dto
}

func TestCreateCart(t *testing.T) {
	api := &mockCartAPI{cart: sampleCart()}

	req := httptest.NewRequest(http.MethodPost, "/cart", nil)
	req.Header.Set("X-Session-ID", "session-1")
	rec := serveRequest(api, &mockLister{}, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "session-1", rec.Header().Get("X-Session-ID"))
	assert.Equal(t, "session-1", api.lastSessionID)

	dto := decodeCart(t, rec)
	assert.Equal(t, "cart-1", dto.ID)
	assert.Len(t, dto.Products, 2)
	assert.InDelta(t, 40.0, dto.TotalPrice, 0.001)
}

func TestCreateCart_GeneratesSessionID(t *testing.T) {
	api := &mockCartAPI{cart: sampleCart()}

	req := httptest.NewRequest(http.MethodPost, "/cart", nil)
	rec := serveRequest(api, &mockLister{}, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Session-ID"))
	assert.Equal(t, rec.Header().Get("X-Session-ID"), api.lastSessionID)
}

func TestCreateCart_WithProductDefaultsQuantity(t *testing.T) {
	api := &mockCartAPI{cart: sampleCart()}

	body := bytes.NewBufferString(`{"product_id": 1}`)
	req := httptest.NewRequest(http.MethodPost, "/cart", body)
	rec := serveRequest(api, &mockLister{}, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(1), api.lastProductID)
	assert.Equal(t, 1, api.lastQuantity)
}

func TestCreateCart_InvalidBody(t *testing.T) {
	api := &mockCartAPI{cart: sampleCart()}

	body := bytes.NewBufferString(`{not json`)
	req := httptest.NewRequest(http.MethodPost, "/cart", body)
	rec := serveRequest(api, &mockLister{}, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddItem(t *testing.T) {
	api := &mockCartAPI{cart: sampleCart()}

	body := bytes.NewBufferString(`{"cart_id": "cart-1", "product_id": 2, "quantity": 3}`)
	req := httptest.NewRequest(http.MethodPost, "/cart/add_item", body)
	rec := serveRequest(api, &mockLister{}, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "cart-1", api.lastCartID)
	assert.Equal(t, int64(2), api.lastProductID)
	assert.Equal(t, 3, api.lastQuantity)
}

func TestAddItem_MissingCartID(t *testing.T) {
	api := &mockCartAPI{cart: sampleCart()}

	body := bytes.NewBufferString(`{"product_id": 2, "quantity": 3}`)
	req := httptest.NewRequest(http.MethodPost, "/cart/add_item", body)
	rec := serveRequest(api, &mockLister{}, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddItem_InvalidQuantity(t *testing.T) {
	api := &mockCartAPI{err: domain.NewValidationError("quantity must be positive")}

	body := bytes.NewBufferString(`{"cart_id": "cart-1", "product_id": 2, "quantity": -1}`)
	req := httptest.NewRequest(http.MethodPost, "/cart/add_item", body)
	rec := serveRequest(api, &mockLister{}, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "validation_error", errResp.Code)
}

func TestGetCart(t *testing.T) {
	api := &mockCartAPI{cart: sampleCart()}

	req := httptest.NewRequest(http.MethodGet, "/cart/cart-1", nil)
	rec := serveRequest(api, &mockLister{}, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cart-1", api.lastCartID)

	dto := decodeCart(t, rec)
	assert.InDelta(t, 20.0, dto.Products[0].LineTotal, 0.001)
}

func TestGetCart_NotFound(t *testing.T) {
	api := &mockCartAPI{err: repository.ErrCartNotFound}

	req := httptest.NewRequest(http.MethodGet, "/cart/missing", nil)
	rec := serveRequest(api, &mockLister{}, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCart_Timeout(t *testing.T) {
	api := &mockCartAPI{err: context.DeadlineExceeded}

	req := httptest.NewRequest(http.MethodGet, "/cart/cart-1", nil)
	rec := serveRequest(api, &mockLister{}, req)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestUpdateQuantity(t *testing.T) {
	api := &mockCartAPI{cart: sampleCart()}

	body := bytes.NewBufferString(`{"quantity": 5}`)
	req := httptest.NewRequest(http.MethodPut, "/cart/cart-1/items/1", body)
	rec := serveRequest(api, &mockLister{}, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cart-1", api.lastCartID)
	assert.Equal(t, int64(1), api.lastProductID)
	assert.Equal(t, 5, api.lastQuantity)
}

func TestUpdateQuantity_BadProductID(t *testing.T) {
	api := &mockCartAPI{cart: sampleCart()}

	body := bytes.NewBufferString(`{"quantity": 5}`)
	req := httptest.NewRequest(http.MethodPut, "/cart/cart-1/items/abc", body)
	rec := serveRequest(api, &mockLister{}, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveItem(t *testing.T) {
	api := &mockCartAPI{cart: sampleCart()}

	req := httptest.NewRequest(http.MethodDelete, "/cart/cart-1/items/2", nil)
	rec := serveRequest(api, &mockLister{}, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), api.lastProductID)
}

func TestRemoveItem_NotInCart(t *testing.T) {
	api := &mockCartAPI{err: domain.ErrItemNotFound}

	req := httptest.NewRequest(http.MethodDelete, "/cart/cart-1/items/9", nil)
	rec := serveRequest(api, &mockLister{}, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "item_not_found", errResp.Code)
}

func TestListProducts(t *testing.T) {
	lister := &mockLister{products: []*catalog.Product{
		{ID: 1, Name: "Wireless Mouse", Price: decimal.RequireFromString("10.00")},
		{ID: 2, Name: "Mechanical Keyboard", Price: decimal.RequireFromString("20.00")},
	}}

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	rec := serveRequest(&mockCartAPI{}, lister, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var dtos []ProductDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&dtos))
	require.Len(t, dtos, 2)
	assert.InDelta(t, 10.0, dtos[0].Price, 0.001)
}

func TestGetProduct(t *testing.T) {
	lister := &mockLister{products: []*catalog.Product{
		{ID: 1, Name: "Wireless Mouse", Price: decimal.RequireFromString("10.00")},
	}}

	req := httptest.NewRequest(http.MethodGet, "/products/1", nil)
	rec := serveRequest(&mockCartAPI{}, lister, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var dto ProductDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&dto))
	assert.Equal(t, "Wireless Mouse", dto.Name)
}

func TestGetProduct_NotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/products/42", nil)
	rec := serveRequest(&mockCartAPI{}, &mockLister{}, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
