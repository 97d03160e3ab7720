package database

import (
	"context"

	"github.com/charmbracelet/log"
)

// StatsDB holds the aggregate queries behind the admin statistics.
type StatsDB interface {
	CountUsers(ctx context.Context) (int64, error)
	CountBlockedUsers(ctx context.Context) (int64, error)
	CountCharts(ctx context.Context) (int64, error)
	// MostUsedChartType returns "" if there are no charts. Ties are resolved by the database.
	MostUsedChartType(ctx context.Context) (string, error)
}

func (c *Client) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.WithContext(ctx).Model(&User{}).Count(&n).Error; err != nil {
		log.Error("failed to count users", "error", err)
		return 0, err
	}
	return n, nil
}

func (c *Client) CountBlockedUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.WithContext(ctx).Model(&User{}).Where("is_blocked = ?", true).Count(&n).Error; err != nil {
		log.Error("failed to count blocked users", "error", err)
		return 0, err
	}
	return n, nil
}

func (c *Client) CountCharts(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.WithContext(ctx).Model(&Chart{}).Count(&n).Error; err != nil {
		log.Error("failed to count charts", "error", err)
		return 0, err
	}
	return n, nil
}

func (c *Client) MostUsedChartType(ctx context.Context) (string, error) {
	var rows []struct {
		ChartType string
		Total     int64
	}
	err := c.db.WithContext(ctx).Model(&Chart{}).
		Select("chart_type, COUNT(*) AS total").
		Group("chart_type").
		Order("total DESC").
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		log.Error("failed to get most used chart type", "error", err)
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].ChartType, nil
}
