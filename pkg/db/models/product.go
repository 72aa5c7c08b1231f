package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a water purifier model offered for sale, rent, or both.
// All amounts are integer paise.
type Product struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name             string    `gorm:"column:name;type:text;not null"`
	Description      *string   `gorm:"column:description;type:text"`
	BuyPricePaise    int64     `gorm:"column:buy_price_paise;not null;default:0"`
	MonthlyRentPaise int64     `gorm:"column:monthly_rent_paise;not null;default:0"`
	DepositPaise     int64     `gorm:"column:deposit_paise;not null;default:0"`
	InstallFeePaise  int64     `gorm:"column:install_fee_paise;not null;default:0"`
	Purchasable      bool      `gorm:"column:purchasable;not null;default:false"`
	Rentable         bool      `gorm:"column:rentable;not null;default:false"`
	Active           bool      `gorm:"column:active;not null;default:true"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
