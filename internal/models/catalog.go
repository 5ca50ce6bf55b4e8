package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CatalogCourse is the catalog entry a scheduled course delivers.
type CatalogCourse struct {
	ID        string          `db:"id" json:"id"`
	Code      string          `db:"code" json:"code"`
	Title     string          `db:"title" json:"title"`
	BasePrice decimal.Decimal `db:"base_price" json:"base_price"`
	Active    bool            `db:"active" json:"active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Location is a physical training venue. ONLINE deliveries use the reserved
// virtual location instead.
type Location struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
