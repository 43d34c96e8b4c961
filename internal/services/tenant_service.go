package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"estate_backoffice/internal/models"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// TenantService is the provisioning console plus operator management
type TenantService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewTenantService(db *gorm.DB, log *zap.Logger) *TenantService {
	return &TenantService{db: db, log: log}
}

// OperatorInput describes a back-office operator
type OperatorInput struct {
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Phone       string          `json:"phone"`
	FirebaseUID string          `json:"firebase_uid"`
	Role        models.UserRole `json:"role"`
}

// TenantInput describes a new tenant and its first admin
type TenantInput struct {
	Name  string        `json:"name"`
	Slug  string        `json:"slug"`
	Admin OperatorInput `json:"admin"`
}

// PreferenceInput updates how an operator is notified
type PreferenceInput struct {
	Channel            models.NotificationChannel `json:"channel"`
	WhatsappTargetType string                     `json:"whatsapp_target_type"`
	WhatsappGroupID    string                     `json:"whatsapp_group_id"`
}

func (in *OperatorInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirebaseUID = strings.TrimSpace(in.FirebaseUID)
	if in.Name == "" || in.Email == "" || in.FirebaseUID == "" {
		return fmt.Errorf("%w: name, email and firebase_uid are required", ErrValidation)
	}
	if in.Role == "" {
		in.Role = models.UserRoleStaff
	}
	if in.Role != models.UserRoleAdmin && in.Role != models.UserRoleStaff {
		return fmt.Errorf("%w: role must be admin or staff", ErrValidation)
	}
	return nil
}

// ProvisionTenant creates a tenant with its first admin. Superadmin only.
func (s *TenantService) ProvisionTenant(ctx context.Context, actor models.Actor, in TenantInput) (*models.Tenant, *models.User, error) {
	if !actor.IsSuperAdmin() {
		return nil, nil, ErrForbidden
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	if in.Name == "" {
		return nil, nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !slugPattern.MatchString(in.Slug) {
		return nil, nil, fmt.Errorf("%w: slug must be lowercase letters, digits and dashes", ErrValidation)
	}
	in.Admin.Role = models.UserRoleAdmin
	if err := in.Admin.normalize(); err != nil {
		return nil, nil, err
	}

	tenant := models.Tenant{Name: in.Name, Slug: in.Slug, IsActive: true}
	var admin models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tenant).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: tenant slug %q", ErrDuplicate, in.Slug)
			}
			return fmt.Errorf("create tenant: %w", err)
		}
		u, err := createOperator(tx, tenant.ID, in.Admin)
		if err != nil {
			return err
		}
		admin = *u
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("tenant provisioned", zap.Uint("tenant_id", tenant.ID), zap.String("slug", tenant.Slug))
	return &tenant, &admin, nil
}

func (s *TenantService) ListTenants(ctx context.Context, actor models.Actor) ([]models.Tenant, error) {
	if !actor.IsSuperAdmin() {
		return nil, ErrForbidden
	}
	var tenants []models.Tenant
	if err := s.db.WithContext(ctx).Order("name").Find(&tenants).Error; err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

func (s *TenantService) ListOperators(ctx context.Context, actor models.Actor) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", actor.TenantID).Order("name").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	return users, nil
}

// CreateOperator adds an operator to the actor's tenant. Staff cannot add operators.
func (s *TenantService) CreateOperator(ctx context.Context, actor models.Actor, in OperatorInput) (*models.User, error) {
	if actor.Role != models.UserRoleAdmin && !actor.IsSuperAdmin() {
		return nil, ErrForbidden
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	var user *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = createOperator(tx, actor.TenantID, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func createOperator(tx *gorm.DB, tenantID uint, in OperatorInput) (*models.User, error) {
	user := models.User{
		TenantID:    tenantID,
		Name:        in.Name,
		Email:       in.Email,
		Phone:       strings.TrimSpace(in.Phone),
		FirebaseUID: in.FirebaseUID,
		Role:        in.Role,
	}
	if err := tx.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: firebase uid already registered", ErrDuplicate)
		}
		return nil, fmt.Errorf("create operator: %w", err)
	}
	pref := models.UserNotifPreference{
		TenantID:           tenantID,
		UserID:             user.ID,
		Channel:            models.NotificationChannelEmail,
		WhatsappTargetType: models.WhatsappTargetTypePersonal,
	}
	if err := tx.Create(&pref).Error; err != nil {
		return nil, fmt.Errorf("create preference: %w", err)
	}
	return &user, nil
}

// FindOperatorByFirebaseUID resolves a verified session to an operator
func (s *TenantService) FindOperatorByFirebaseUID(ctx context.Context, uid string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("firebase_uid = ?", uid).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find operator: %w", err)
	}
	return &user, nil
}

func (s *TenantService) loadOperator(ctx context.Context, actor models.Actor, userID uint) (*models.User, error) {
	if actor.Role == models.UserRoleStaff && actor.UserID != userID {
		return nil, ErrForbidden
	}
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", userID, actor.TenantID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("operator %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load operator: %w", err)
	}
	return &user, nil
}

// GetPreference returns the operator's notification preference, or the default when none is stored
func (s *TenantService) GetPreference(ctx context.Context, actor models.Actor, userID uint) (*models.UserNotifPreference, error) {
	user, err := s.loadOperator(ctx, actor, userID)
	if err != nil {
		return nil, err
	}
	var pref models.UserNotifPreference
	err = s.db.WithContext(ctx).Where("user_id = ?", user.ID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.UserNotifPreference{
			TenantID:           user.TenantID,
			UserID:             user.ID,
			Channel:            models.NotificationChannelEmail,
			WhatsappTargetType: models.WhatsappTargetTypePersonal,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load preference: %w", err)
	}
	return &pref, nil
}

// UpdatePreference upserts the operator's notification preference
func (s *TenantService) UpdatePreference(ctx context.Context, actor models.Actor, userID uint, in PreferenceInput) (*models.UserNotifPreference, error) {
	if !in.Channel.Valid() {
		return nil, fmt.Errorf("%w: unknown channel %q", ErrValidation, in.Channel)
	}
	if in.WhatsappTargetType == "" {
		in.WhatsappTargetType = models.WhatsappTargetTypePersonal
	}
	if in.WhatsappTargetType != models.WhatsappTargetTypePersonal && in.WhatsappTargetType != models.WhatsappTargetTypeGroup {
		return nil, fmt.Errorf("%w: whatsapp_target_type must be personal or group", ErrValidation)
	}
	if in.Channel == models.NotificationChannelWhatsapp && in.WhatsappTargetType == models.WhatsappTargetTypeGroup && strings.TrimSpace(in.WhatsappGroupID) == "" {
		return nil, fmt.Errorf("%w: whatsapp_group_id is required for group delivery", ErrValidation)
	}

	pref, err := s.GetPreference(ctx, actor, userID)
	if err != nil {
		return nil, err
	}
	pref.Channel = in.Channel
	pref.WhatsappTargetType = in.WhatsappTargetType
	pref.WhatsappGroupID = strings.TrimSpace(in.WhatsappGroupID)
	if err := s.db.WithContext(ctx).Save(pref).Error; err != nil {
		return nil, fmt.Errorf("save preference: %w", err)
	}
	return pref, nil
}
