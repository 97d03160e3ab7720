package engine

import (
	"context"

	"github.com/jon4hz/chartwise/internal/api/models"
	"github.com/jon4hz/chartwise/internal/apperr"
	"github.com/jon4hz/chartwise/internal/database"
	"github.com/jon4hz/chartwise/internal/insight"
)

const chartNotFound = "chart not found"

// SaveChart stores a chart built by the client. The data must not be empty.
func (e *Engine) SaveChart(ctx context.Context, user *models.Identity, req models.SaveChartRequest) (*models.Chart, error) {
	if len(req.Data) == 0 {
		return nil, apperr.Validation("chart data is required")
	}

	chart := &database.Chart{
		UserID:    user.ID,
		ChartType: req.ChartType,
		XKey:      req.XKey,
		YKey:      req.YKey,
		Title:     req.Title,
		FileName:  req.FileName,
		IsPinned:  req.IsPinned,
		Data:      req.Data,
	}
	if err := e.db.CreateChart(ctx, chart); err != nil {
		return nil, apperr.Storage("failed to save chart", err)
	}

	c := models.ToChart(*chart)
	return &c, nil
}

// GetChart returns one of the user's charts.
func (e *Engine) GetChart(ctx context.Context, user *models.Identity, id uint) (*models.Chart, error) {
	chart, err := e.db.GetChart(ctx, id, user.ID)
	if err != nil {
		return nil, storeErr(err, chartNotFound, "failed to get chart")
	}
	c := models.ToChart(*chart)
	return &c, nil
}

// UpdateChart applies a partial update to one of the user's charts.
// Pinning and unpinning go through here as well.
func (e *Engine) UpdateChart(ctx context.Context, user *models.Identity, id uint, req models.UpdateChartRequest) (*models.Chart, error) {
	if req.Data != nil && len(*req.Data) == 0 {
		return nil, apperr.Validation("chart data must not be empty")
	}

	chart, err := e.db.UpdateChart(ctx, id, user.ID, database.ChartUpdate{
		ChartType: req.ChartType,
		XKey:      req.XKey,
		YKey:      req.YKey,
		Title:     req.Title,
		IsPinned:  req.IsPinned,
		Data:      req.Data,
	})
	if err != nil {
		return nil, storeErr(err, chartNotFound, "failed to update chart")
	}
	c := models.ToChart(*chart)
	return &c, nil
}

// ChartHistory returns the user's unpinned charts, newest first.
func (e *Engine) ChartHistory(ctx context.Context, user *models.Identity) ([]models.Chart, error) {
	return e.charts(ctx, user, false)
}

// SavedCharts returns the user's pinned charts, newest first.
func (e *Engine) SavedCharts(ctx context.Context, user *models.Identity) ([]models.Chart, error) {
	return e.charts(ctx, user, true)
}

func (e *Engine) charts(ctx context.Context, user *models.Identity, pinned bool) ([]models.Chart, error) {
	charts, err := e.db.GetCharts(ctx, user.ID, pinned)
	if err != nil {
		return nil, apperr.Storage("failed to get charts", err)
	}
	return models.ToCharts(charts), nil
}

// DeleteChart removes one of the user's charts.
func (e *Engine) DeleteChart(ctx context.Context, user *models.Identity, id uint) error {
	if err := e.db.DeleteChart(ctx, id, user.ID); err != nil {
		return storeErr(err, chartNotFound, "failed to delete chart")
	}
	return nil
}

// Summarize asks the language model for a short summary of the chart data.
func (e *Engine) Summarize(ctx context.Context, req models.InsightRequest) (string, error) {
	return e.insight.Summarize(ctx, insight.Request{
		ChartType: req.ChartType,
		XKey:      req.XKey,
		YKey:      req.YKey,
		Data:      req.Data,
	})
}
