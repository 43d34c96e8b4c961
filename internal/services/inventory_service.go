package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"estate_backoffice/internal/models"
)

// InventoryService manages projects and their plots
type InventoryService struct {
	db    *gorm.DB
	log   *zap.Logger
	cache TenantCacheInvalidator
}

func NewInventoryService(db *gorm.DB, log *zap.Logger, cache TenantCacheInvalidator) *InventoryService {
	return &InventoryService{db: db, log: log, cache: cache}
}

// ProjectInput describes a new project
type ProjectInput struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// PlotInput describes a new plot
type PlotInput struct {
	PlotNumber string          `json:"plot_number"`
	Size       string          `json:"size"`
	Price      decimal.Decimal `json:"price"`
}

// PlotFilter narrows ListPlots
type PlotFilter struct {
	ProjectID uint
	Status    models.PlotStatus
}

func (s *InventoryService) CreateProject(ctx context.Context, actor models.Actor, in ProjectInput) (*models.Project, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	project := models.Project{
		TenantID: actor.TenantID,
		Name:     in.Name,
		Location: strings.TrimSpace(in.Location),
	}
	if err := s.db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return &project, nil
}

func (s *InventoryService) ListProjects(ctx context.Context, actor models.Actor) ([]models.Project, error) {
	var projects []models.Project
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", actor.TenantID).Order("name").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// CreatePlot adds an available plot to a project
func (s *InventoryService) CreatePlot(ctx context.Context, actor models.Actor, projectID uint, in PlotInput) (*models.Plot, error) {
	in.PlotNumber = strings.TrimSpace(in.PlotNumber)
	if in.PlotNumber == "" {
		return nil, fmt.Errorf("%w: plot_number is required", ErrValidation)
	}
	if !in.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", ErrValidation)
	}

	db := s.db.WithContext(ctx)
	var project models.Project
	err := db.Where("id = ? AND tenant_id = ?", projectID, actor.TenantID).First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	plot := models.Plot{
		TenantID:   actor.TenantID,
		ProjectID:  project.ID,
		PlotNumber: in.PlotNumber,
		Size:       strings.TrimSpace(in.Size),
		Price:      in.Price,
		Status:     models.PlotStatusAvailable,
	}
	if err := db.Create(&plot).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: plot %s in project %s", ErrDuplicate, plot.PlotNumber, project.Name)
		}
		return nil, fmt.Errorf("create plot: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidateTenant(ctx, actor.TenantID)
	}
	s.log.Info("plot created", zap.Uint("tenant_id", actor.TenantID), zap.Uint("plot_id", plot.ID))
	return &plot, nil
}

func (s *InventoryService) ListPlots(ctx context.Context, actor models.Actor, f PlotFilter) ([]models.Plot, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", actor.TenantID)
	if f.ProjectID != 0 {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var plots []models.Plot
	if err := q.Order("project_id, plot_number").Find(&plots).Error; err != nil {
		return nil, fmt.Errorf("list plots: %w", err)
	}
	return plots, nil
}
