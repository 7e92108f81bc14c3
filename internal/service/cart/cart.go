// Package cart owns every read and mutation of a user's cart and enforces the
// line-uniqueness and stock invariants under concurrent access. All multi-row
// writes run inside one transaction with the product row locked before any
// quantity decision is made, so two concurrent adds for the same line are
// serialized at the database and neither increment is lost.
package cart

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trowool/yarnshop/internal/models"
)

// MaxLineQuantity bounds a single add request.
const MaxLineQuantity = 100

type Service struct {
	DB *gorm.DB
}

// Line is a cart row joined with the catalog fields the storefront renders.
type Line struct {
	ID        uint      `json:"id"`
	ProductID uint      `json:"product_id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Color     string    `json:"color"`
	Quantity  uint      `json:"quantity"`
	Stock     uint      `json:"stock"`
	Images    []string  `json:"images" gorm:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// forUpdate adds a row-level lock to the query. sqlite (used by the tests)
// has no FOR UPDATE syntax and serializes writers on its own, so the clause
// is applied on postgres only.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

const lineColumns = "cart_items.id AS id, cart_items.product_id AS product_id, " +
	"products.name AS name, products.price AS price, cart_items.color AS color, " +
	"cart_items.quantity AS quantity, products.stock AS stock, cart_items.created_at AS created_at"

// GetCart returns the user's lines joined with product name, price, stock and
// images, most recently created first.
func (s *Service) GetCart(ctx context.Context, userID uint) ([]Line, error) {
	var lines []Line
	err := s.DB.WithContext(ctx).
		Model(&models.CartItem{}).
		Select(lineColumns).
		Joins("JOIN products ON products.id = cart_items.product_id").
		Where("cart_items.user_id = ?", userID).
		Order("cart_items.created_at DESC, cart_items.id DESC").
		Scan(&lines).Error
	if err != nil {
		return nil, err
	}

	if err := s.attachImages(ctx, s.DB, lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// AddToCart merges quantity into the (userID, productID, color) line, creating
// it when absent. The product row is locked first, then the line, then the
// stock admission check runs against the locked values.
func (s *Service) AddToCart(ctx context.Context, userID, productID uint, color string, quantity uint) (*Line, error) {
	if quantity < 1 || quantity > MaxLineQuantity {
		return nil, ErrInvalidQuantity
	}

	var line Line
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := forUpdate(tx).First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return err
		}

		var item models.CartItem
		err := forUpdate(tx).
			Where("user_id = ? AND product_id = ? AND color = ?", userID, productID, color).
			First(&item).Error
		switch {
		case err == nil:
			newQuantity := item.Quantity + quantity
			if newQuantity > product.Stock {
				return &InsufficientStockError{Requested: newQuantity, Available: product.Stock}
			}
			item.Quantity = newQuantity
			if err := tx.Save(&item).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if quantity > product.Stock {
				return &InsufficientStockError{Requested: quantity, Available: product.Stock}
			}
			item = models.CartItem{
				UserID:    userID,
				ProductID: productID,
				Color:     color,
				Quantity:  quantity,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
		default:
			return err
		}

		line = lineFrom(item, product)
		return nil
	})
	if err != nil {
		return nil, err
	}

	lines := []Line{line}
	if err := s.attachImages(ctx, s.DB, lines); err != nil {
		return nil, err
	}
	return &lines[0], nil
}

// UpdateQuantity sets the absolute quantity of an item the user owns. The line
// is locked first, then its product, then the stock check runs.
func (s *Service) UpdateQuantity(ctx context.Context, userID, itemID uint, quantity uint) (*Line, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	var line Line
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.CartItem
		err := forUpdate(tx).
			Where("id = ? AND user_id = ?", itemID, userID).
			First(&item).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}

		var product models.Product
		if err := forUpdate(tx).First(&product, item.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return err
		}

		if quantity > product.Stock {
			return &InsufficientStockError{Requested: quantity, Available: product.Stock}
		}

		item.Quantity = quantity
		if err := tx.Save(&item).Error; err != nil {
			return err
		}

		line = lineFrom(item, product)
		return nil
	})
	if err != nil {
		return nil, err
	}

	lines := []Line{line}
	if err := s.attachImages(ctx, s.DB, lines); err != nil {
		return nil, err
	}
	return &lines[0], nil
}

// RemoveFromCart deletes the line scoped to (itemID, userID).
func (s *Service) RemoveFromCart(ctx context.Context, userID, itemID uint) error {
	res := s.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", itemID, userID).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

// ClearCart deletes every line of the user. Clearing an empty cart succeeds.
func (s *Service) ClearCart(ctx context.Context, userID uint) error {
	return s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.CartItem{}).Error
}

func lineFrom(item models.CartItem, product models.Product) Line {
	return Line{
		ID:        item.ID,
		ProductID: item.ProductID,
		Name:      product.Name,
		Price:     product.Price,
		Color:     item.Color,
		Quantity:  item.Quantity,
		Stock:     product.Stock,
		CreatedAt: item.CreatedAt,
	}
}

func (s *Service) attachImages(ctx context.Context, db *gorm.DB, lines []Line) error {
	if len(lines) == 0 {
		return nil
	}

	ids := make([]uint, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}

	var images []models.ProductImage
	if err := db.WithContext(ctx).Where("product_id IN ?", ids).Find(&images).Error; err != nil {
		return err
	}

	byProduct := make(map[uint][]string, len(ids))
	for _, img := range images {
		byProduct[img.ProductID] = append(byProduct[img.ProductID], img.URL)
	}
	for i := range lines {
		lines[i].Images = byProduct[lines[i].ProductID]
	}
	return nil
}
