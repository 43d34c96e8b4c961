package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"estate_backoffice/internal/dbtest"
	"estate_backoffice/internal/models"
)

func TestInventoryService_Plots(t *testing.T) {
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db)
	svc := NewInventoryService(db, zaptest.NewLogger(t), nil)
	ctx := context.Background()

	project, err := svc.CreateProject(ctx, fx.Actor(), ProjectInput{Name: " Phase 2 ", Location: "Depok"})
	require.NoError(t, err)
	assert.Equal(t, "Phase 2", project.Name)

	_, err = svc.CreateProject(ctx, fx.Actor(), ProjectInput{})
	assert.ErrorIs(t, err, ErrValidation)

	plot, err := svc.CreatePlot(ctx, fx.Actor(), project.ID, PlotInput{PlotNumber: "P-1", Size: "8x15", Price: dbtest.Money("250000")})
	require.NoError(t, err)
	assert.Equal(t, models.PlotStatusAvailable, plot.Status)

	_, err = svc.CreatePlot(ctx, fx.Actor(), project.ID, PlotInput{PlotNumber: "P-1", Price: dbtest.Money("1")})
	assert.ErrorIs(t, err, ErrDuplicate)

	// Same number in another project is fine
	_, err = svc.CreatePlot(ctx, fx.Actor(), fx.Project.ID, PlotInput{PlotNumber: "P-1", Price: dbtest.Money("1")})
	require.NoError(t, err)

	_, err = svc.CreatePlot(ctx, fx.Actor(), project.ID, PlotInput{PlotNumber: "P-2", Price: dbtest.Money("0")})
	assert.ErrorIs(t, err, ErrValidation)

	other := models.Actor{TenantID: fx.Tenant.ID + 1}
	_, err = svc.CreatePlot(ctx, other, project.ID, PlotInput{PlotNumber: "P-3", Price: dbtest.Money("1")})
	assert.ErrorIs(t, err, ErrNotFound)

	plots, err := svc.ListPlots(ctx, fx.Actor(), PlotFilter{ProjectID: project.ID})
	require.NoError(t, err)
	require.Len(t, plots, 1)
	assert.Equal(t, plot.ID, plots[0].ID)

	sold, err := svc.ListPlots(ctx, fx.Actor(), PlotFilter{Status: models.PlotStatusSold})
	require.NoError(t, err)
	assert.Empty(t, sold)

	projects, err := svc.ListProjects(ctx, fx.Actor())
	require.NoError(t, err)
	assert.Len(t, projects, 2)
}
