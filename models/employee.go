package models

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

type Employee struct {
	ID              uint      `gorm:"primary_key" json:"id"`
	FirstName       string    `gorm:"size:100;not null" json:"first_name"`
	LastName        string    `gorm:"size:100;not null" json:"last_name"`
	Title           string    `gorm:"size:150" json:"title"`
	Email           string    `gorm:"index;size:255" json:"email"`
	Phone           string    `gorm:"size:32" json:"phone"`
	SystemRolesJSON []byte    `gorm:"type:json" json:"system_roles"`
	VitecEmployeeId string    `gorm:"index;size:64" json:"vitec_employee_id"`
	DepartmentId    string    `gorm:"index;size:64" json:"department_id"`
	OfficeId        *uint     `gorm:"index" json:"office_id"`
	IsActive        bool      `gorm:"default:true" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e *Employee) SystemRoles() []string {
	return DecodeSystemRoles(e.SystemRolesJSON)
}

func DecodeSystemRoles(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var roles []string
	if err := json.Unmarshal(raw, &roles); err != nil {
		return nil
	}
	return roles
}

func EncodeSystemRoles(roles []string) []byte {
	if len(roles) == 0 {
		return nil
	}
	b, _ := json.Marshal(roles)
	return b
}

// ListEmployees returns the full local employee collection, ordered by id so
// downstream matching sees a stable iteration order.
func ListEmployees(ctx context.Context, db *gorm.DB) ([]Employee, error) {
	var employees []Employee
	if err := db.WithContext(ctx).Order("id").Find(&employees).Error; err != nil {
		return nil, err
	}
	return employees, nil
}
