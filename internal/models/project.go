package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Project is a development containing plots
type Project struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	TenantID uint   `gorm:"index" json:"tenant_id"`
	Name     string `gorm:"type:varchar(255)" json:"name"`
	Location string `gorm:"type:varchar(255)" json:"location"`
}

// PlotStatus is the availability of a plot
type PlotStatus string

const (
	PlotStatusAvailable PlotStatus = "available"
	PlotStatusSold      PlotStatus = "sold"
	PlotStatusReserved  PlotStatus = "reserved"
)

var plotTransitions = map[PlotStatus][]PlotStatus{
	PlotStatusAvailable: {PlotStatusSold, PlotStatusReserved},
	PlotStatusReserved:  {PlotStatusSold, PlotStatusAvailable},
	PlotStatusSold:      {PlotStatusAvailable},
}

// CanTransitionTo reports whether moving the plot from s to next is allowed
func (s PlotStatus) CanTransitionTo(next PlotStatus) bool {
	return allowed(plotTransitions[s], next)
}

// Plot is an inventory unit within a project
type Plot struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	TenantID   uint            `gorm:"index" json:"tenant_id"`
	ProjectID  uint            `gorm:"uniqueIndex:idx_plots_project_number,priority:1" json:"project_id"`
	PlotNumber string          `gorm:"type:varchar(50);uniqueIndex:idx_plots_project_number,priority:2" json:"plot_number"`
	Size       string          `gorm:"type:varchar(50)" json:"size"`
	Price      decimal.Decimal `gorm:"type:decimal(15,2)" json:"price"`
	Status     PlotStatus      `gorm:"type:varchar(20);default:'available';index" json:"status"`
	ClientID   *uint           `gorm:"index" json:"client_id"`
}

// IsOccupied reports whether the plot is held by a sale
func (p Plot) IsOccupied() bool {
	return (p.Status == PlotStatusSold || p.Status == PlotStatusReserved) && p.ClientID != nil
}

func allowed[T comparable](list []T, v T) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
