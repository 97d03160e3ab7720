package engine

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/chartwise/internal/api/models"
	"github.com/jon4hz/chartwise/internal/apperr"
	"github.com/jon4hz/chartwise/internal/database"
	"golang.org/x/sync/errgroup"
)

const (
	userNotFound = "user not found"
	// noChartType is reported as most used chart type while there are no charts.
	noChartType = "N/A"
)

var errSelfModify = apperr.Forbidden("cannot modify yourself")

// ListUsers returns all users without credentials.
func (e *Engine) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := e.db.GetAllUsers(ctx)
	if err != nil {
		return nil, apperr.Storage("failed to get users", err)
	}
	return models.ToUsers(users, e.avatars), nil
}

// UpdateUserRole sets the role of another user.
func (e *Engine) UpdateUserRole(ctx context.Context, caller *models.Identity, target uint, role database.Role) error {
	if caller.ID == target {
		return errSelfModify
	}
	if !role.Valid() {
		return apperr.Validation("invalid role")
	}
	if err := e.db.UpdateUserRole(ctx, target, role); err != nil {
		return storeErr(err, userNotFound, "failed to update role")
	}
	log.Info("user role updated", "admin_id", caller.ID, "user_id", target, "role", role)
	return nil
}

// ToggleUserBlock flips the blocked flag of another user and returns the new state.
func (e *Engine) ToggleUserBlock(ctx context.Context, caller *models.Identity, target uint) (bool, error) {
	if caller.ID == target {
		return false, errSelfModify
	}
	user, err := e.db.GetUserByID(ctx, target)
	if err != nil {
		return false, storeErr(err, userNotFound, "failed to get user")
	}
	blocked := !user.IsBlocked
	if err := e.db.SetUserBlocked(ctx, target, blocked); err != nil {
		return false, storeErr(err, userNotFound, "failed to update block status")
	}
	log.Info("user block status changed", "admin_id", caller.ID, "user_id", target, "blocked", blocked)
	return blocked, nil
}

// DeleteUser removes another user. The user's charts are kept.
func (e *Engine) DeleteUser(ctx context.Context, caller *models.Identity, target uint) error {
	if caller.ID == target {
		return errSelfModify
	}
	if err := e.db.DeleteUser(ctx, target); err != nil {
		return storeErr(err, userNotFound, "failed to delete user")
	}
	log.Info("user deleted", "admin_id", caller.ID, "user_id", target)
	return nil
}

// Stats gathers the platform statistics concurrently.
func (e *Engine) Stats(ctx context.Context) (*models.Stats, error) {
	var stats models.Stats
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		stats.TotalUsers, err = e.db.CountUsers(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.BlockedUsers, err = e.db.CountBlockedUsers(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalCharts, err = e.db.CountCharts(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.MostUsedChartType, err = e.db.MostUsedChartType(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, apperr.Storage("failed to get stats", err)
	}
	if stats.MostUsedChartType == "" {
		stats.MostUsedChartType = noChartType
	}
	return &stats, nil
}
