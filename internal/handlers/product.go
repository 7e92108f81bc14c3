package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trowool/yarnshop/internal/logging"
	"github.com/trowool/yarnshop/internal/models"
	"github.com/trowool/yarnshop/internal/mykafka"
	"github.com/trowool/yarnshop/internal/service/catalog"
	"github.com/trowool/yarnshop/internal/util"
)

type ProductHandler struct {
	Catalog  *catalog.Service
	Producer *mykafka.Producer
}

type productRequest struct {
	CategoryID   uint     `json:"category_id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Brand        string   `json:"brand"`
	Season       string   `json:"season"`
	Series       string   `json:"series"`
	Composition  string   `json:"composition_percent"`
	Price        float64  `json:"price"`
	PackQuantity uint     `json:"pack_quantity"`
	ThreadLength uint     `json:"thread_length"`
	Weight       uint     `json:"weight"`
	Stock        uint     `json:"stock"`
	Colors       []string `json:"colors"`
}

func (h *ProductHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "product_events", fmt.Sprint(event["productID"]), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish failed", "error", err)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func (h *ProductHandler) GetCategories(c echo.Context) error {
	categories, err := h.Catalog.Categories(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, categories)
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	categoryID := uint(parseIntDefault(c.QueryParam("category"), 0))

	offset, limit := util.Calculate(page, size)

	items, total, err := h.Catalog.Products(c.Request().Context(), categoryID, offset, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}

	product, err := h.Catalog.Product(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	var req productRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Name == "" || req.Price <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and a positive price are required"})
	}

	product := models.Product{
		CategoryID:   req.CategoryID,
		Name:         req.Name,
		Description:  req.Description,
		Brand:        req.Brand,
		Season:       req.Season,
		Series:       req.Series,
		Composition:  req.Composition,
		Price:        req.Price,
		PackQuantity: req.PackQuantity,
		ThreadLength: req.ThreadLength,
		Weight:       req.Weight,
		Stock:        req.Stock,
		Colors:       req.Colors,
	}
	if err := h.Catalog.CreateProduct(c.Request().Context(), &product); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	h.publish(c, map[string]any{
		"type":      "product_created",
		"productID": product.ID,
		"name":      product.Name,
	})
	return c.JSON(http.StatusCreated, product)
}

func (h *ProductHandler) PatchProduct(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}

	product, err := h.Catalog.Product(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	var req productRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	product.CategoryID = req.CategoryID
	product.Name = req.Name
	product.Description = req.Description
	product.Brand = req.Brand
	product.Season = req.Season
	product.Series = req.Series
	product.Composition = req.Composition
	product.Price = req.Price
	product.PackQuantity = req.PackQuantity
	product.ThreadLength = req.ThreadLength
	product.Weight = req.Weight
	product.Stock = req.Stock
	product.Colors = req.Colors

	if err := h.Catalog.UpdateProduct(c.Request().Context(), product); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	h.publish(c, map[string]any{
		"type":      "product_updated",
		"productID": product.ID,
		"name":      product.Name,
	})
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}

	if err := h.Catalog.DeleteProduct(c.Request().Context(), id); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	h.publish(c, map[string]any{
		"type":      "product_deleted",
		"productID": id,
	})
	return c.NoContent(http.StatusNoContent)
}
