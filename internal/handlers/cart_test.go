package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/trowool/yarnshop/internal/models"
	"github.com/trowool/yarnshop/internal/service/cart"
	"github.com/trowool/yarnshop/internal/service/order"
)

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Category{},
		&models.Product{},
		&models.ProductImage{},
		&models.CartItem{},
		&models.Review{},
		&models.Order{},
		&models.OrderItem{},
	))
	return db
}

func newCartHandler(t *testing.T) (*CartHandler, *gorm.DB) {
	t.Helper()
	db := newHandlerDB(t)
	return &CartHandler{
		Svc:    &cart.Service{DB: db},
		Orders: &order.Service{DB: db},
		Debug:  true,
	}, db
}

// cartRequest builds an echo context with the authenticated user already set,
// the way the auth middleware would leave it.
func cartRequest(userID uint, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != 0 {
		c.Set("userID", userID)
	}
	return c, rec
}

func seedCartProduct(t *testing.T, db *gorm.DB, stock uint) *models.Product {
	t.Helper()
	p := &models.Product{CategoryID: 1, Name: "Alpaca Soft", Price: 12, Stock: stock}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestCartRequiresAuth(t *testing.T) {
	h, _ := newCartHandler(t)

	c, _ := cartRequest(0, http.MethodGet, "/api/v1/cart", "")
	err := h.GetCart(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestAddToCartCreated(t *testing.T) {
	h, db := newCartHandler(t)
	p := seedCartProduct(t, db, 10)

	c, rec := cartRequest(1, http.MethodPost, "/api/v1/cart",
		`{"product_id": `+jsonID(p.ID)+`, "color": "natural", "quantity": 2}`)
	require.NoError(t, h.AddToCart(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var line cart.Line
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &line))
	require.Equal(t, p.ID, line.ProductID)
	require.Equal(t, uint(2), line.Quantity)
	require.Equal(t, "Alpaca Soft", line.Name)
}

func TestAddToCartDefaultsQuantity(t *testing.T) {
	h, db := newCartHandler(t)
	p := seedCartProduct(t, db, 10)

	c, rec := cartRequest(1, http.MethodPost, "/api/v1/cart",
		`{"product_id": `+jsonID(p.ID)+`, "color": "natural"}`)
	require.NoError(t, h.AddToCart(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var line cart.Line
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &line))
	require.Equal(t, uint(1), line.Quantity)
}

func TestAddToCartMissingColor(t *testing.T) {
	h, db := newCartHandler(t)
	p := seedCartProduct(t, db, 10)

	c, rec := cartRequest(1, http.MethodPost, "/api/v1/cart",
		`{"product_id": `+jsonID(p.ID)+`}`)
	require.NoError(t, h.AddToCart(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddToCartUnknownProductIs404(t *testing.T) {
	h, _ := newCartHandler(t)

	c, rec := cartRequest(1, http.MethodPost, "/api/v1/cart",
		`{"product_id": 999, "color": "natural"}`)
	require.NoError(t, h.AddToCart(c))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddToCartInsufficientStockIs409(t *testing.T) {
	h, db := newCartHandler(t)
	p := seedCartProduct(t, db, 3)

	c, rec := cartRequest(1, http.MethodPost, "/api/v1/cart",
		`{"product_id": `+jsonID(p.ID)+`, "color": "natural", "quantity": 4}`)
	require.NoError(t, h.AddToCart(c))
	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "insufficient stock", body["error"])
	require.EqualValues(t, 4, body["requested"])
	require.EqualValues(t, 3, body["available"])
}

func TestAddToCartQuantityTooLargeIs400(t *testing.T) {
	h, db := newCartHandler(t)
	p := seedCartProduct(t, db, 500)

	c, rec := cartRequest(1, http.MethodPost, "/api/v1/cart",
		`{"product_id": `+jsonID(p.ID)+`, "color": "natural", "quantity": 101}`)
	require.NoError(t, h.AddToCart(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "quantity", body["field"])
}

func TestUpdateQuantityOK(t *testing.T) {
	h, db := newCartHandler(t)
	p := seedCartProduct(t, db, 10)

	item := models.CartItem{UserID: 1, ProductID: p.ID, Color: "natural", Quantity: 2}
	require.NoError(t, db.Create(&item).Error)

	c, rec := cartRequest(1, http.MethodPut, "/api/v1/cart/1", `{"quantity": 5}`)
	c.SetParamNames("id")
	c.SetParamValues(jsonID(item.ID))
	require.NoError(t, h.UpdateQuantity(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var line cart.Line
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &line))
	require.Equal(t, uint(5), line.Quantity)
}

func TestUpdateQuantityUnknownItemIs404(t *testing.T) {
	h, _ := newCartHandler(t)

	c, rec := cartRequest(1, http.MethodPut, "/api/v1/cart/42", `{"quantity": 5}`)
	c.SetParamNames("id")
	c.SetParamValues("42")
	require.NoError(t, h.UpdateQuantity(c))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateQuantityBadIDIs400(t *testing.T) {
	h, _ := newCartHandler(t)

	c, rec := cartRequest(1, http.MethodPut, "/api/v1/cart/abc", `{"quantity": 5}`)
	c.SetParamNames("id")
	c.SetParamValues("abc")
	require.NoError(t, h.UpdateQuantity(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveFromCartNoContent(t *testing.T) {
	h, db := newCartHandler(t)
	p := seedCartProduct(t, db, 10)

	item := models.CartItem{UserID: 1, ProductID: p.ID, Color: "natural", Quantity: 2}
	require.NoError(t, db.Create(&item).Error)

	c, rec := cartRequest(1, http.MethodDelete, "/api/v1/cart/1", "")
	c.SetParamNames("id")
	c.SetParamValues(jsonID(item.ID))
	require.NoError(t, h.RemoveFromCart(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	var count int64
	require.NoError(t, db.Model(&models.CartItem{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}

func TestClearCartNoContent(t *testing.T) {
	h, db := newCartHandler(t)
	p := seedCartProduct(t, db, 10)
	require.NoError(t, db.Create(&models.CartItem{UserID: 1, ProductID: p.ID, Color: "natural", Quantity: 2}).Error)

	c, rec := cartRequest(1, http.MethodDelete, "/api/v1/cart", "")
	require.NoError(t, h.ClearCart(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Clearing again is still a success.
	c, rec = cartRequest(1, http.MethodDelete, "/api/v1/cart", "")
	require.NoError(t, h.ClearCart(c))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCheckoutEmptyCartIs400(t *testing.T) {
	h, _ := newCartHandler(t)

	c, rec := cartRequest(1, http.MethodPost, "/api/v1/cart/order", "")
	require.NoError(t, h.Checkout(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutCreatesOrder(t *testing.T) {
	h, db := newCartHandler(t)
	p := seedCartProduct(t, db, 10)
	require.NoError(t, db.Create(&models.CartItem{UserID: 1, ProductID: p.ID, Color: "natural", Quantity: 2}).Error)

	c, rec := cartRequest(1, http.MethodPost, "/api/v1/cart/order", "")
	require.NoError(t, h.Checkout(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var result order.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotZero(t, result.OrderID)
	require.Equal(t, float64(24), result.Total)

	var product models.Product
	require.NoError(t, db.First(&product, p.ID).Error)
	require.Equal(t, uint(8), product.Stock)
}

func jsonID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
