package models

import (
	"time"

	"gorm.io/gorm"
)

// UserRole represents what an operator may do
type UserRole string

const (
	UserRoleSuperAdmin UserRole = "superadmin"
	UserRoleAdmin      UserRole = "admin"
	UserRoleStaff      UserRole = "staff"
)

// User is a back-office operator signed in through Firebase
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	TenantID    uint     `gorm:"index" json:"tenant_id"`
	Name        string   `gorm:"type:varchar(255)" json:"name"`
	Phone       string   `gorm:"type:varchar(50)" json:"phone"`
	Email       string   `gorm:"type:varchar(255);index" json:"email"`
	FirebaseUID string   `gorm:"type:varchar(128);uniqueIndex" json:"firebase_uid"`
	Role        UserRole `gorm:"type:varchar(20);default:'staff'" json:"role"`
}

// Actor identifies who performs an operation and for which tenant.
// It is passed explicitly into every service call.
type Actor struct {
	TenantID uint
	UserID   uint
	Role     UserRole
}

// IsSuperAdmin reports whether the actor may use the provisioning console
func (a Actor) IsSuperAdmin() bool {
	return a.Role == UserRoleSuperAdmin
}
