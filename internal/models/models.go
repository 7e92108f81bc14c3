package models

import (
	"time"
)

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null"                 json:"role"`
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"      json:"id"`
	Token     string    `gorm:"unique;not null" json:"token"`
	UserID    uint      `gorm:"index;not null"  json:"user_id"`
	ExpiresAt time.Time `gorm:"not null"        json:"expires_at"`
	Revoked   bool      `gorm:"default:false"   json:"revoked"`
}

type Category struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"unique;not null"          json:"name"`
}

type Product struct {
	ID           uint           `gorm:"primaryKey;autoIncrement"    json:"id"`
	CategoryID   uint           `gorm:"index;not null"              json:"category_id"`
	Name         string         `gorm:"not null"                    json:"name"`
	Description  string         `json:"description"`
	Brand        string         `json:"brand"`
	Season       string         `json:"season"`
	Series       string         `json:"series"`
	Composition  string         `json:"composition_percent"`
	Price        float64        `gorm:"not null"                    json:"price"`
	PackQuantity uint           `json:"pack_quantity"`
	ThreadLength uint           `json:"thread_length"`
	Weight       uint           `json:"weight"`
	Stock        uint           `json:"stock"`
	Colors       []string       `gorm:"serializer:json"             json:"colors"`
	Images       []ProductImage `gorm:"constraint:OnDelete:CASCADE" json:"images"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type ProductImage struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID uint   `gorm:"index;not null"           json:"product_id"`
	URL       string `gorm:"not null"                 json:"url"`
	ColorHex  string `json:"color_hex"`
}

// CartItem is one line of a user's cart. A user has at most one line per
// (product, color) pair; adds for the same pair merge into it.
type CartItem struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"           json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_cart_line;not null" json:"user_id"`
	ProductID uint      `gorm:"uniqueIndex:idx_cart_line;not null" json:"product_id"`
	Color     string    `gorm:"uniqueIndex:idx_cart_line;not null" json:"color"`
	Quantity  uint      `gorm:"not null;check:quantity > 0"        json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Review struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null"     json:"user_id"`
	Rating    uint      `gorm:"not null"                 json:"rating"`
	Text      string    `gorm:"not null"                 json:"text"`
	Images    []string  `gorm:"serializer:json"          json:"images"`
	CreatedAt time.Time `json:"created_at"`
}

type Order struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"index;not null"           json:"user_id"`
	Total     float64   `gorm:"not null"                 json:"total"`
	Status    string    `gorm:"not null"                 json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type OrderItem struct {
	ID        uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   uint    `gorm:"index;not null"           json:"order_id"`
	UserID    uint    `gorm:"not null"                 json:"user_id"`
	ProductID uint    `gorm:"not null"                 json:"product_id"`
	Color     string  `json:"color"`
	Quantity  uint    `gorm:"not null"                 json:"quantity"`
	UnitPrice float64 `gorm:"not null"                 json:"unit_price"`
}
