// Package order turns a cart into an order. Stock is decremented here, under
// the same product row locks the cart service takes for its admission checks;
// the cart service itself never writes stock.
package order

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trowool/yarnshop/internal/models"
	"github.com/trowool/yarnshop/internal/service/cart"
)

var ErrEmptyCart = errors.New("cart is empty")

type Service struct {
	DB *gorm.DB
}

type Result struct {
	OrderID uint               `json:"order_id"`
	Total   float64            `json:"total"`
	Status  string             `json:"status"`
	Items   []models.OrderItem `json:"items"`
}

// Checkout snapshots the user's cart into an order, decrements stock for every
// line and clears the cart, all in one transaction. Any stock shortfall rolls
// the whole order back.
func (s *Service) Checkout(ctx context.Context, userID uint) (*Result, error) {
	var result Result

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items []models.CartItem
		// Products are locked in id order so concurrent checkouts cannot
		// deadlock against each other.
		if err := tx.Where("user_id = ?", userID).
			Order("product_id ASC").
			Find(&items).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		var (
			total      float64
			orderItems []models.OrderItem
		)
		for _, it := range items {
			var product models.Product
			if err := lockProduct(tx).First(&product, it.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return cart.ErrProductNotFound
				}
				return err
			}
			if it.Quantity > product.Stock {
				return &cart.InsufficientStockError{Requested: it.Quantity, Available: product.Stock}
			}

			res := tx.Model(&models.Product{}).
				Where("id = ?", product.ID).
				Update("stock", gorm.Expr("stock - ?", it.Quantity))
			if res.Error != nil {
				return res.Error
			}

			total += float64(it.Quantity) * product.Price
			orderItems = append(orderItems, models.OrderItem{
				UserID:    userID,
				ProductID: it.ProductID,
				Color:     it.Color,
				Quantity:  it.Quantity,
				UnitPrice: product.Price,
			})
		}

		ord := models.Order{
			UserID: userID,
			Total:  total,
			Status: "new",
		}
		if err := tx.Create(&ord).Error; err != nil {
			return err
		}
		for i := range orderItems {
			orderItems[i].OrderID = ord.ID
		}
		if err := tx.Create(&orderItems).Error; err != nil {
			return err
		}

		if err := tx.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}

		result = Result{
			OrderID: ord.ID,
			Total:   ord.Total,
			Status:  ord.Status,
			Items:   orderItems,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func lockProduct(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
