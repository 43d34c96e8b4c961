package tasks

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"estate_backoffice/internal/models"
)

// PlotIntegrityTask reports plots and sales that disagree with each other. It never
// changes data.
type PlotIntegrityTask struct {
	log *zap.Logger
}

func (t *PlotIntegrityTask) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	violations, err := CheckPlotIntegrity(ctx, db, task.TenantID)
	if err != nil {
		return nil, err
	}
	for _, v := range violations {
		t.log.Warn("plot integrity violation", zap.Uint("tenant_id", task.TenantID), zap.String("detail", v))
	}
	return map[string]interface{}{
		"count":      len(violations),
		"violations": violations,
	}, nil
}

// CheckPlotIntegrity lists invariant violations between plots and sales. tenantID 0
// checks every tenant.
func CheckPlotIntegrity(ctx context.Context, db *gorm.DB, tenantID uint) ([]string, error) {
	scope := func(q *gorm.DB) *gorm.DB {
		if tenantID != 0 {
			return q.Where("tenant_id = ?", tenantID)
		}
		return q
	}

	var plots []models.Plot
	if err := scope(db.WithContext(ctx)).Order("id").Find(&plots).Error; err != nil {
		return nil, fmt.Errorf("load plots: %w", err)
	}
	var clients []models.Client
	if err := scope(db.WithContext(ctx)).Where("status <> ?", models.SaleStatusCancelled).Order("id").Find(&clients).Error; err != nil {
		return nil, fmt.Errorf("load sales: %w", err)
	}

	plotByID := make(map[uint]models.Plot, len(plots))
	var violations []string
	for _, p := range plots {
		plotByID[p.ID] = p
		switch {
		case p.Status == models.PlotStatusAvailable && p.ClientID != nil:
			violations = append(violations, fmt.Sprintf("plot %d is available but held by client %d", p.ID, *p.ClientID))
		case p.Status != models.PlotStatusAvailable && p.ClientID == nil:
			violations = append(violations, fmt.Sprintf("plot %d is %s without a client", p.ID, p.Status))
		}
	}

	for _, c := range clients {
		want := c.NetPrice().Sub(c.TotalPaid)
		if !c.Balance.Equal(want) {
			violations = append(violations, fmt.Sprintf("client %d balance %s, expected %s",
				c.ID, c.Balance.StringFixed(2), want.StringFixed(2)))
		}
		p, ok := plotByID[c.PlotID]
		if !ok {
			violations = append(violations, fmt.Sprintf("client %d references missing plot %d", c.ID, c.PlotID))
			continue
		}
		if p.ClientID == nil || *p.ClientID != c.ID {
			violations = append(violations, fmt.Sprintf("client %d is active but plot %d is not assigned to it", c.ID, p.ID))
		}
	}
	return violations, nil
}
