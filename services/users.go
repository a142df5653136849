package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"luminar-api/logger"
	"luminar-api/models"
)

type UserService struct {
	DB       *gorm.DB
	Identity IdentityProvider
}

func NewUserService(db *gorm.DB, identity IdentityProvider) *UserService {
	return &UserService{DB: db, Identity: identity}
}

// Resolve maps a verified identity to the internal user, creating it on first
// sight. The provider is asked for the email only when the user is created.
func (s *UserService) Resolve(ctx context.Context, id *Identity) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("external_id = ?", id.Subject).First(&user).Error
	switch {
	case err == nil:
		return &user, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	user = models.User{
		ID:         uuid.NewString(),
		ExternalID: id.Subject,
		Email:      s.email(ctx, id),
	}

	// A concurrent first request for the same subject may win the insert
	if err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_id"}}, DoNothing: true}).
		Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	var stored models.User
	if err := s.DB.WithContext(ctx).Where("external_id = ?", id.Subject).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to reload user: %w", err)
	}
	if stored.ID == user.ID {
		logger.InfoCtx(ctx, "Created user", zap.String("user_id", stored.ID), zap.String("subject", id.Subject))
	}
	return &stored, nil
}

func (s *UserService) email(ctx context.Context, id *Identity) string {
	if id.Email != "" {
		return id.Email
	}
	email, err := s.Identity.LookupEmail(ctx, id.Subject)
	if err != nil {
		logger.WarnCtx(ctx, "Failed to look up user email", zap.String("subject", id.Subject), zap.Error(err))
		return ""
	}
	return email
}
