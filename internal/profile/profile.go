// Package profile stores the customer contact details used to prefill
// billing information at checkout.
package profile

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/fjod/go_storefront/internal/api"
	"github.com/fjod/go_storefront/internal/apperr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxFieldLen = 200

type Model struct {
	UserID    string    `gorm:"primaryKey;column:user_id"`
	FullName  string    `gorm:"column:full_name;not null;default:''"`
	Email     string    `gorm:"column:email;not null;default:''"`
	Phone     string    `gorm:"column:phone;not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Model) TableName() string {
	return "customer_profiles"
}

func (m Model) toAPI() api.Profile {
	return api.Profile{UserID: m.UserID, FullName: m.FullName, Email: m.Email, Phone: m.Phone}
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get returns the saved profile. A user who never saved one gets an empty
// profile rather than an error.
func (s *Store) Get(ctx context.Context, userID string) (api.Profile, error) {
	var m Model
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return api.Profile{UserID: userID}, nil
	}
	if err != nil {
		return api.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return m.toAPI(), nil
}

// Update applies the non-nil fields of req, creating the profile on first use.
func (s *Store) Update(ctx context.Context, userID string, req api.UpdateProfileRequest) (api.Profile, error) {
	m := Model{UserID: userID}
	var columns []string
	if req.FullName != nil {
		m.FullName = strings.TrimSpace(*req.FullName)
		columns = append(columns, "full_name")
	}
	if req.Email != nil {
		m.Email = strings.TrimSpace(*req.Email)
		columns = append(columns, "email")
	}
	if req.Phone != nil {
		m.Phone = strings.TrimSpace(*req.Phone)
		columns = append(columns, "phone")
	}
	if err := validate(m); err != nil {
		return api.Profile{}, err
	}
	if len(columns) == 0 {
		return s.Get(ctx, userID)
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(append(columns, "updated_at")),
	}).Create(&m).Error
	if err != nil {
		return api.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return s.Get(ctx, userID)
}

func validate(m Model) error {
	if len(m.FullName) > maxFieldLen || len(m.Email) > maxFieldLen || len(m.Phone) > maxFieldLen {
		return apperr.New(apperr.ErrValidation, fmt.Sprintf("profile fields are limited to %d characters", maxFieldLen))
	}
	if m.Email != "" {
		if _, err := mail.ParseAddress(m.Email); err != nil {
			return apperr.New(apperr.ErrValidation, "email address is invalid")
		}
	}
	return nil
}
