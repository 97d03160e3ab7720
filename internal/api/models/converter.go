package models

import (
	"github.com/jon4hz/chartwise/internal/database"
	"github.com/jon4hz/chartwise/internal/gravatar"
	"github.com/jon4hz/chartwise/internal/sheet"
	"github.com/samber/lo"
)

// ToChart converts a database.Chart to its API form.
func ToChart(c database.Chart) Chart {
	data := c.Data
	if data == nil {
		data = sheet.Rows{}
	}
	return Chart{
		ID:        c.ID,
		UserID:    c.UserID,
		ChartType: c.ChartType,
		XKey:      c.XKey,
		YKey:      c.YKey,
		Title:     c.Title,
		FileName:  c.FileName,
		FileID:    c.FileID,
		IsPinned:  c.IsPinned,
		Data:      data,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// ToCharts converts a slice of database.Chart. The result is never nil.
func ToCharts(charts []database.Chart) []Chart {
	return lo.Map(charts, func(c database.Chart, _ int) Chart {
		return ToChart(c)
	})
}

// ToUser converts a database.User for the admin listing.
// The avatar URL is only set if the resolver is enabled.
func ToUser(u database.User, avatars *gravatar.Resolver) User {
	return User{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		IsBlocked: u.IsBlocked,
		AvatarURL: avatars.URL(u.Email),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// ToUsers converts a slice of database.User for the admin listing.
func ToUsers(users []database.User, avatars *gravatar.Resolver) []User {
	return lo.Map(users, func(u database.User, _ int) User {
		return ToUser(u, avatars)
	})
}
