package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trowool/yarnshop/internal/handlers"
	"github.com/trowool/yarnshop/internal/service/token"
)

type Deps struct {
	AuthHandler    *handlers.AuthHandler
	ProductHandler *handlers.ProductHandler
	CartHandler    *handlers.CartHandler
	ReviewHandler  *handlers.ReviewHandler
	SearchHandler  *handlers.SearchHandler
	Tokens         *token.Service
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.Logout)

	v1.GET("/search", d.SearchHandler.Search)
	v1.GET("/categories", d.ProductHandler.GetCategories)

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)

	admin := v1.Group("/admin", d.Tokens.RequireAdmin)
	admin.POST("/products", d.ProductHandler.CreateProduct)
	admin.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	admin.DELETE("/products/:id", d.ProductHandler.DeleteProduct)

	v1.GET("/reviews", d.ReviewHandler.List)
	v1.POST("/reviews", d.ReviewHandler.Create, d.Tokens.AutoRefresh)

	cart := v1.Group("/cart", d.Tokens.AutoRefresh)
	cart.GET("", d.CartHandler.GetCart)
	cart.POST("", d.CartHandler.AddToCart)
	cart.PUT("/:id", d.CartHandler.UpdateQuantity)
	cart.DELETE("/:id", d.CartHandler.RemoveFromCart)
	cart.DELETE("", d.CartHandler.ClearCart)
	cart.POST("/order", d.CartHandler.Checkout)
}
