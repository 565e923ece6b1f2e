package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Event is a scheduled happening owned by the user who created it.
type Event struct {
	ID          uint                `json:"id" gorm:"primaryKey"`
	Title       string              `json:"title" gorm:"size:255;not null;index"`
	Description *string             `json:"description,omitempty" gorm:"type:text"`
	StartDate   time.Time           `json:"startDate" gorm:"not null;index"`
	EndDate     time.Time           `json:"endDate" gorm:"not null;index"`
	TotalGuests int                 `json:"totalGuests" gorm:"not null"`
	Category    string              `json:"category" gorm:"size:100;not null;index"`
	Location    *string             `json:"location,omitempty" gorm:"size:255"`
	Price       decimal.NullDecimal `json:"price" gorm:"type:decimal(10,2)"`
	Images      []string            `json:"images" gorm:"type:json;serializer:json"`
	UserID      uint                `json:"userId" gorm:"not null;index"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`

	User  *User        `json:"-" gorm:"foreignKey:UserID"`
	Owner *UserSummary `json:"user,omitempty" gorm:"-"`
}

// AfterFind exposes the preloaded owner as a summary and normalizes a missing image list.
func (e *Event) AfterFind(tx *gorm.DB) error {
	if e.User != nil {
		s := e.User.Summary()
		e.Owner = &s
	}
	if e.Images == nil {
		e.Images = []string{}
	}
	return nil
}

// OwnedBy reports whether userID is the recorded owner of e.
func (e *Event) OwnedBy(userID uint) bool {
	return e.UserID == userID
}
