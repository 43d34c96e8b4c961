// Package dbtest opens throwaway databases for tests.
package dbtest

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"estate_backoffice/internal/models"
)

// Open returns a migrated in-memory database. It holds a single connection, so a
// transaction callback must only use its tx handle.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// Fixture is a tenant with one admin operator and one project
type Fixture struct {
	Tenant  models.Tenant
	Admin   models.User
	Project models.Project
}

// Actor acts as the fixture's admin
func (f Fixture) Actor() models.Actor {
	return models.Actor{TenantID: f.Tenant.ID, UserID: f.Admin.ID, Role: f.Admin.Role}
}

// Seed creates a Fixture
func Seed(t *testing.T, db *gorm.DB) Fixture {
	t.Helper()

	f := Fixture{Tenant: models.Tenant{Name: "Green Acres", Slug: "green-acres", IsActive: true}}
	require.NoError(t, db.Create(&f.Tenant).Error)

	f.Admin = models.User{
		TenantID:    f.Tenant.ID,
		Name:        "Admin",
		Email:       "admin@greenacres.test",
		FirebaseUID: "uid-admin",
		Role:        models.UserRoleAdmin,
	}
	require.NoError(t, db.Create(&f.Admin).Error)

	f.Project = models.Project{TenantID: f.Tenant.ID, Name: "Phase 1", Location: "Bogor"}
	require.NoError(t, db.Create(&f.Project).Error)
	return f
}

// Money parses a decimal literal
func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// AddPlot creates an available plot
func AddPlot(t *testing.T, db *gorm.DB, f Fixture, number, price string) models.Plot {
	t.Helper()
	plot := models.Plot{
		TenantID:   f.Tenant.ID,
		ProjectID:  f.Project.ID,
		PlotNumber: number,
		Size:       "10x20",
		Price:      Money(price),
		Status:     models.PlotStatusAvailable,
	}
	require.NoError(t, db.Create(&plot).Error)
	return plot
}

// AddSale sells plot to a buyer who has paid paid so far. The plot row is updated in place.
func AddSale(t *testing.T, db *gorm.DB, f Fixture, plot *models.Plot, paid string) models.Client {
	t.Helper()
	client := models.Client{
		TenantID:            f.Tenant.ID,
		Name:                "Buyer " + plot.PlotNumber,
		Email:               "buyer-" + plot.PlotNumber + "@example.com",
		Phone:               "081200000000",
		ProjectID:           plot.ProjectID,
		PlotID:              plot.ID,
		TotalPrice:          plot.Price,
		TotalPaid:           Money(paid),
		Status:              models.SaleStatusOngoing,
		PaymentPlan:         models.PaymentPlanCash,
		NotificationChannel: models.NotificationChannelEmail,
	}
	client.RecomputeBalance()
	if client.Balance.IsZero() {
		client.Status = models.SaleStatusCompleted
	}
	require.NoError(t, db.Create(&client).Error)

	if client.TotalPaid.IsPositive() {
		require.NoError(t, db.Create(&models.Payment{
			TenantID:    f.Tenant.ID,
			ClientID:    client.ID,
			Amount:      client.TotalPaid,
			Method:      models.PaymentMethodBank,
			PaymentDate: time.Now(),
			RecordedBy:  f.Admin.ID,
		}).Error)
	}

	plot.Status = models.PlotStatusSold
	plot.ClientID = &client.ID
	require.NoError(t, db.Save(plot).Error)
	return client
}
