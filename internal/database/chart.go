package database

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/chartwise/internal/sheet"
	"gorm.io/gorm"
)

// Chart is a saved chart configuration together with the rows it was built from.
// Every lookup is scoped to the owning user.
type Chart struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
	UserID    uint   `gorm:"index;not null"`
	ChartType string `gorm:"index;not null"`
	XKey      string `gorm:"not null"`
	YKey      string `gorm:"not null"`
	Title     string
	FileName  string
	// FileID identifies the upload the chart was created from.
	FileID   string     `gorm:"index"`
	IsPinned bool       `gorm:"index;not null"`
	Data     sheet.Rows `gorm:"serializer:json;not null"`
}

// ChartUpdate holds the fields of a partial chart update. Nil fields are left unchanged.
type ChartUpdate struct {
	ChartType *string
	XKey      *string
	YKey      *string
	Title     *string
	IsPinned  *bool
	Data      *sheet.Rows
}

// columns returns the updated column names and a Chart carrying their values.
func (u ChartUpdate) columns() ([]string, *Chart) {
	var (
		cols  []string
		chart Chart
	)
	if u.ChartType != nil {
		cols = append(cols, "chart_type")
		chart.ChartType = *u.ChartType
	}
	if u.XKey != nil {
		cols = append(cols, "x_key")
		chart.XKey = *u.XKey
	}
	if u.YKey != nil {
		cols = append(cols, "y_key")
		chart.YKey = *u.YKey
	}
	if u.Title != nil {
		cols = append(cols, "title")
		chart.Title = *u.Title
	}
	if u.IsPinned != nil {
		cols = append(cols, "is_pinned")
		chart.IsPinned = *u.IsPinned
	}
	if u.Data != nil {
		cols = append(cols, "data")
		chart.Data = *u.Data
	}
	return cols, &chart
}

// ChartDB holds the chart operations. userID is part of every predicate.
type ChartDB interface {
	CreateChart(ctx context.Context, chart *Chart) error
	GetChart(ctx context.Context, id, userID uint) (*Chart, error)
	GetCharts(ctx context.Context, userID uint, pinned bool) ([]Chart, error)
	UpdateChart(ctx context.Context, id, userID uint, update ChartUpdate) (*Chart, error)
	DeleteChart(ctx context.Context, id, userID uint) error
}

func (c *Client) CreateChart(ctx context.Context, chart *Chart) error {
	if err := c.db.WithContext(ctx).Create(chart).Error; err != nil {
		log.Error("failed to create chart", "user_id", chart.UserID, "error", err)
		return err
	}
	return nil
}

func (c *Client) GetChart(ctx context.Context, id, userID uint) (*Chart, error) {
	var chart Chart
	if err := c.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&chart).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error("failed to get chart", "chart_id", id, "error", err)
		}
		return nil, err
	}
	return &chart, nil
}

// GetCharts returns the user's charts with the given pinned state, newest first.
func (c *Client) GetCharts(ctx context.Context, userID uint, pinned bool) ([]Chart, error) {
	charts := []Chart{}
	err := c.db.WithContext(ctx).
		Where("user_id = ? AND is_pinned = ?", userID, pinned).
		Order("created_at DESC").Order("id DESC").
		Find(&charts).Error
	if err != nil {
		log.Error("failed to get charts", "user_id", userID, "pinned", pinned, "error", err)
		return nil, err
	}
	return charts, nil
}

// UpdateChart applies the update to the user's chart and returns the stored result.
func (c *Client) UpdateChart(ctx context.Context, id, userID uint, update ChartUpdate) (*Chart, error) {
	cols, values := update.columns()
	if len(cols) == 0 {
		return c.GetChart(ctx, id, userID)
	}

	result := c.db.WithContext(ctx).Model(&Chart{}).
		Where("id = ? AND user_id = ?", id, userID).
		Select(cols).
		Updates(values)
	if result.Error != nil {
		log.Error("failed to update chart", "chart_id", id, "error", result.Error)
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return c.GetChart(ctx, id, userID)
}

func (c *Client) DeleteChart(ctx context.Context, id, userID uint) error {
	result := c.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&Chart{})
	if result.Error != nil {
		log.Error("failed to delete chart", "chart_id", id, "error", result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
