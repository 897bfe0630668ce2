package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Car struct {
	ID          string          `yaml:"id" json:"id"`
	Name        string          `yaml:"name" json:"name"`
	Model       string          `yaml:"model" json:"model"`
	PlateNumber string          `yaml:"plate_number" json:"plate_number"`
	PricePerDay decimal.Decimal `yaml:"price_per_day" json:"price_per_day"`
	SortOrder   int64           `yaml:"sort_order" json:"sort_order"`
	IsActive    bool            `yaml:"is_active" json:"is_active"`
	CreatedAt   time.Time       `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `yaml:"updated_at" json:"updated_at"`
}
