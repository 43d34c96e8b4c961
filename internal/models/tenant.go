package models

import (
	"time"

	"gorm.io/gorm"
)

// Tenant is a company using the back-office. Every other row is scoped by TenantID.
type Tenant struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name     string `gorm:"type:varchar(255)" json:"name"`
	Slug     string `gorm:"type:varchar(100);uniqueIndex" json:"slug"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
}
