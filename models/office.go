package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Office struct {
	ID                 uint      `gorm:"primary_key" json:"id"`
	Name               string    `gorm:"size:255;not null" json:"name"`
	LegalName          string    `gorm:"size:255" json:"legal_name"`
	OrganizationNumber string    `gorm:"index;size:20" json:"organization_number"`
	Email              string    `gorm:"size:255" json:"email"`
	Phone              string    `gorm:"size:32" json:"phone"`
	StreetAddress      string    `gorm:"size:255" json:"street_address"`
	PostalCode         string    `gorm:"size:10" json:"postal_code"`
	City               string    `gorm:"size:100" json:"city"`
	VitecOfficeId      string    `gorm:"index;size:64" json:"vitec_office_id"`
	IsActive           bool      `gorm:"default:true" json:"is_active"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ListOffices returns the full local office collection, ordered by id so
// downstream matching sees a stable iteration order.
func ListOffices(ctx context.Context, db *gorm.DB) ([]Office, error) {
	var offices []Office
	if err := db.WithContext(ctx).Order("id").Find(&offices).Error; err != nil {
		return nil, err
	}
	return offices, nil
}
