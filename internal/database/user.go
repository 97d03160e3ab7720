package database

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

// Role is the authorization role of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents an account. Email is stored normalized (trimmed, lower case).
type User struct {
	gorm.Model
	Name     string
	Email    string `gorm:"uniqueIndex;not null"`
	Password string `gorm:"not null"` // bcrypt hash
	Role     Role   `gorm:"type:varchar(16);not null;default:user"`
	// IsBlocked users can't log in. Tokens issued before the block stay valid until they expire.
	IsBlocked bool `gorm:"not null"`
	// ResetTokenHash is the sha256 of the pending password reset token.
	ResetTokenHash      *string `gorm:"index"`
	ResetTokenExpiresAt *time.Time
}

// UserDB holds the user operations.
type UserDB interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id uint) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetAllUsers(ctx context.Context) ([]User, error)
	UpdateUserRole(ctx context.Context, id uint, role Role) error
	SetUserBlocked(ctx context.Context, id uint, blocked bool) error
	UpdateUserPassword(ctx context.Context, id uint, passwordHash string) error
	DeleteUser(ctx context.Context, id uint) error
	SetResetToken(ctx context.Context, id uint, tokenHash string, expiresAt time.Time) error
	GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*User, error)
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// CreateUser inserts the user. A taken email returns gorm.ErrDuplicatedKey.
func (c *Client) CreateUser(ctx context.Context, user *User) error {
	if err := c.db.WithContext(ctx).Create(user).Error; err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Error("failed to create user", "error", err)
		}
		return err
	}
	return nil
}

func (c *Client) GetUserByID(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := c.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error("failed to get user by ID", "error", err)
		}
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	if err := c.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error("failed to get user by email", "error", err)
		}
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetAllUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		log.Error("failed to get all users", "error", err)
		return nil, err
	}
	return users, nil
}

func (c *Client) UpdateUserRole(ctx context.Context, id uint, role Role) error {
	return c.updateUser(ctx, id, map[string]any{"role": role}, "role")
}

func (c *Client) SetUserBlocked(ctx context.Context, id uint, blocked bool) error {
	return c.updateUser(ctx, id, map[string]any{"is_blocked": blocked}, "blocked state")
}

// UpdateUserPassword replaces the password hash and drops any pending reset token.
func (c *Client) UpdateUserPassword(ctx context.Context, id uint, passwordHash string) error {
	return c.updateUser(ctx, id, map[string]any{
		"password":               passwordHash,
		"reset_token_hash":       nil,
		"reset_token_expires_at": nil,
	}, "password")
}

func (c *Client) SetResetToken(ctx context.Context, id uint, tokenHash string, expiresAt time.Time) error {
	return c.updateUser(ctx, id, map[string]any{
		"reset_token_hash":       tokenHash,
		"reset_token_expires_at": expiresAt,
	}, "reset token")
}

func (c *Client) updateUser(ctx context.Context, id uint, values map[string]any, what string) error {
	result := c.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		log.Error("failed to update user "+what, "user_id", id, "error", result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteUser removes the user permanently. Charts owned by the user are kept.
func (c *Client) DeleteUser(ctx context.Context, id uint) error {
	result := c.db.WithContext(ctx).Unscoped().Delete(&User{}, id)
	if result.Error != nil {
		log.Error("failed to delete user", "user_id", id, "error", result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetUserByResetToken finds the user holding the given unexpired reset token hash.
func (c *Client) GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*User, error) {
	var user User
	err := c.db.WithContext(ctx).
		Where("reset_token_hash = ? AND reset_token_expires_at > ?", tokenHash, now).
		First(&user).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error("failed to get user by reset token", "error", err)
		}
		return nil, err
	}
	return &user, nil
}

// ClearExpiredResetTokens removes reset tokens that expired at or before now.
func (c *Client) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	result := c.db.WithContext(ctx).Model(&User{}).
		Where("reset_token_expires_at IS NOT NULL AND reset_token_expires_at <= ?", now).
		Updates(map[string]any{
			"reset_token_hash":       nil,
			"reset_token_expires_at": nil,
		})
	if result.Error != nil {
		log.Error("failed to clear expired reset tokens", "error", result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
