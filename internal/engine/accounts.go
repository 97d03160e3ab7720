package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/chartwise/internal/api/auth"
	"github.com/jon4hz/chartwise/internal/api/models"
	"github.com/jon4hz/chartwise/internal/apperr"
	"github.com/jon4hz/chartwise/internal/database"
	"github.com/jon4hz/chartwise/internal/notify/email"
	"gorm.io/gorm"
)

const (
	minPasswordLength = 6
	// bcrypt ignores everything past 72 bytes
	maxPasswordLength = 72
	resetTokenBytes   = 32
)

var (
	errInvalidCredentials = apperr.Unauthenticated("invalid credentials")
	errBlocked            = apperr.Forbidden("account is blocked")
	errInvalidResetToken  = apperr.Validation("invalid or expired token")
)

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func validateEmail(address string) error {
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return apperr.Validation("invalid email address")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperr.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return apperr.Validation(fmt.Sprintf("password must be at most %d bytes", maxPasswordLength))
	}
	return nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Register creates a new account.
func (e *Engine) Register(ctx context.Context, req models.RegisterRequest) error {
	address := NormalizeEmail(req.Email)
	if err := validateEmail(address); err != nil {
		return err
	}
	if err := validatePassword(req.Password); err != nil {
		return err
	}

	role := req.Role
	switch {
	case role == "":
		role = database.RoleUser
	case !role.Valid():
		return apperr.Validation("invalid role")
	case role == database.RoleAdmin && !e.cfg.Auth.AllowAdminSignup:
		return apperr.Validation("admin signup is disabled")
	}

	if _, err := e.createUser(ctx, strings.TrimSpace(req.Name), address, req.Password, role); err != nil {
		return err
	}
	log.Info("user registered", "email", address, "role", role)
	return nil
}

func (e *Engine) createUser(ctx context.Context, name, address, password string, role database.Role) (*database.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnknown, "failed to hash password", err)
	}
	user := &database.User{
		Name:     name,
		Email:    address,
		Password: hash,
		Role:     role,
	}
	if err := e.db.CreateUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Validation("email already registered")
		}
		return nil, apperr.Storage("failed to create user", err)
	}
	return user, nil
}

// Login checks the credentials and issues a bearer token.
func (e *Engine) Login(ctx context.Context, req models.LoginRequest) (*models.Session, error) {
	user, err := e.db.GetUserByEmail(ctx, NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, apperr.Storage("failed to get user", err)
	}
	if !auth.CheckPassword(user.Password, req.Password) {
		return nil, errInvalidCredentials
	}
	return e.session(user)
}

// FederatedLogin verifies an ID token of the federated identity provider
// and logs the user in, creating the account on first sight.
func (e *Engine) FederatedLogin(ctx context.Context, idToken string) (*models.Session, error) {
	if e.federated == nil {
		return nil, apperr.NotFound("federated login is disabled")
	}
	if strings.TrimSpace(idToken) == "" {
		return nil, apperr.Validation("idToken is required")
	}

	identity, err := e.federated.Verify(ctx, idToken)
	if err != nil {
		log.Debug("rejected federated id token", "error", err)
		return nil, apperr.Unauthenticated("invalid id token")
	}

	address := NormalizeEmail(identity.Email)
	user, err := e.db.GetUserByEmail(ctx, address)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user, err = e.createFederatedUser(ctx, identity, address)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, apperr.Storage("failed to get user", err)
	}
	return e.session(user)
}

func (e *Engine) createFederatedUser(ctx context.Context, identity *auth.FederatedIdentity, address string) (*database.User, error) {
	// the account can only be used through the identity provider until a password reset
	password, err := auth.RandomToken(24)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnknown, "failed to generate password", err)
	}

	name := identity.Name
	if name == "" {
		name, _, _ = strings.Cut(address, "@")
	}

	user, err := e.createUser(ctx, name, address, password, database.RoleUser)
	if apperr.KindOf(err) == apperr.KindValidation {
		// created concurrently by another login
		existing, getErr := e.db.GetUserByEmail(ctx, address)
		if getErr != nil {
			return nil, apperr.Storage("failed to get user", getErr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}
	log.Info("user created from federated login", "email", address, "subject", identity.Subject)
	return user, nil
}

func (e *Engine) session(user *database.User) (*models.Session, error) {
	if user.IsBlocked {
		return nil, errBlocked
	}
	token, err := e.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnknown, "failed to issue token", err)
	}
	return &models.Session{Token: token, Role: user.Role}, nil
}

// ForgotPassword sends a reset link if an account exists for the address.
// The outcome is the same for unknown addresses.
func (e *Engine) ForgotPassword(ctx context.Context, address string) error {
	address = NormalizeEmail(address)
	if err := validateEmail(address); err != nil {
		return err
	}

	user, err := e.db.GetUserByEmail(ctx, address)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return apperr.Storage("failed to get user", err)
	}

	token, err := auth.RandomToken(resetTokenBytes)
	if err != nil {
		return apperr.Wrap(apperr.KindUnknown, "failed to generate reset token", err)
	}
	ttl := e.cfg.Auth.ResetTokenTTL
	if err := e.db.SetResetToken(ctx, user.ID, hashResetToken(token), e.now().Add(ttl)); err != nil {
		return storeErr(err, userNotFound, "failed to store reset token")
	}

	reset := email.PasswordReset{
		UserEmail: user.Email,
		UserName:  user.Name,
		ResetURL:  e.cfg.ClientURL + "/reset-password/" + token,
		ExpiresIn: ttl,
	}
	if err := e.mailer.SendPasswordReset(reset); err != nil {
		// same response as for unknown addresses
		log.Error("failed to send password reset email", "user_id", user.ID, "error", err)
	}
	return nil
}

// ResetPassword sets a new password using a reset token.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if token == "" {
		return errInvalidResetToken
	}

	user, err := e.db.GetUserByResetToken(ctx, hashResetToken(token), e.now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errInvalidResetToken
		}
		return apperr.Storage("failed to get user", err)
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return apperr.Wrap(apperr.KindUnknown, "failed to hash password", err)
	}
	if err := e.db.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return storeErr(err, userNotFound, "failed to update password")
	}
	log.Info("password reset", "user_id", user.ID)
	return nil
}

// EnsureAdmin creates an admin account or promotes and re-passwords an existing one.
func (e *Engine) EnsureAdmin(ctx context.Context, name, address, password string) (*database.User, error) {
	address = NormalizeEmail(address)
	if err := validateEmail(address); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	user, err := e.db.GetUserByEmail(ctx, address)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return e.createUser(ctx, name, address, password, database.RoleAdmin)
	}
	if err != nil {
		return nil, apperr.Storage("failed to get user", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnknown, "failed to hash password", err)
	}
	if err := e.db.UpdateUserRole(ctx, user.ID, database.RoleAdmin); err != nil {
		return nil, storeErr(err, userNotFound, "failed to update role")
	}
	if err := e.db.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return nil, storeErr(err, userNotFound, "failed to update password")
	}
	user.Role = database.RoleAdmin
	return user, nil
}

// clearExpiredResetTokens is the janitor job.
func (e *Engine) clearExpiredResetTokens(ctx context.Context) (string, error) {
	n, err := e.db.ClearExpiredResetTokens(ctx, e.now())
	if err != nil {
		return "", err
	}
	if n > 0 {
		log.Info("cleared expired reset tokens", "count", n)
	}
	return fmt.Sprintf("cleared %d expired reset tokens", n), nil
}
