package models

import (
	"time"

	"github.com/jon4hz/chartwise/internal/database"
	"github.com/jon4hz/chartwise/internal/sheet"
)

// Identity is the authenticated caller, taken from the bearer token.
type Identity struct {
	ID   uint
	Role database.Role
}

// IsAdmin reports whether the caller has the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == database.RoleAdmin
}

// Chart is a chart as returned to its owner.
type Chart struct {
	ID        uint       `json:"id"`
	UserID    uint       `json:"userId"`
	ChartType string     `json:"chartType"`
	XKey      string     `json:"xKey"`
	YKey      string     `json:"yKey"`
	Title     string     `json:"title"`
	FileName  string     `json:"fileName,omitempty"`
	FileID    string     `json:"fileId,omitempty"`
	IsPinned  bool       `json:"isPinned"`
	Data      sheet.Rows `json:"data"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// User is a user as listed for admins. Credentials are never included.
type User struct {
	ID        uint          `json:"id"`
	Name      string        `json:"name"`
	Email     string        `json:"email"`
	Role      database.Role `json:"role"`
	IsBlocked bool          `json:"isBlocked"`
	AvatarURL string        `json:"avatarUrl,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Stats are the platform usage statistics.
type Stats struct {
	TotalUsers        int64  `json:"totalUsers"`
	BlockedUsers      int64  `json:"blockedUsers"`
	TotalCharts       int64  `json:"totalCharts"`
	MostUsedChartType string `json:"mostUsedChartType"`
}

// Upload is the result of an upload: the parsed rows and the auto-saved chart.
type Upload struct {
	Message string     `json:"message"`
	Data    sheet.Rows `json:"data"`
	Chart   Chart      `json:"chart"`
	FileID  string     `json:"fileId"`
}

// SaveChartRequest is the body of a manual chart save.
type SaveChartRequest struct {
	ChartType string     `json:"chartType"`
	XKey      string     `json:"xKey"`
	YKey      string     `json:"yKey"`
	Title     string     `json:"title"`
	Data      sheet.Rows `json:"data"`
	IsPinned  bool       `json:"isPinned"`
	FileName  string     `json:"fileName"`
}

// UpdateChartRequest is the body of a partial chart update. Absent fields are left unchanged.
type UpdateChartRequest struct {
	ChartType *string     `json:"chartType"`
	XKey      *string     `json:"xKey"`
	YKey      *string     `json:"yKey"`
	Title     *string     `json:"title"`
	IsPinned  *bool       `json:"isPinned"`
	Data      *sheet.Rows `json:"data"`
}

// InsightRequest is the body of a summary request.
type InsightRequest struct {
	ChartType string     `json:"chartType"`
	XKey      string     `json:"xKey"`
	YKey      string     `json:"yKey"`
	Data      sheet.Rows `json:"data"`
}

type RegisterRequest struct {
	Name     string        `json:"name"`
	Email    string        `json:"email"`
	Password string        `json:"password"`
	Role     database.Role `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type FederatedLoginRequest struct {
	IDToken string `json:"idToken"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

type RoleRequest struct {
	Role database.Role `json:"role"`
}

// Session is returned after a successful login.
type Session struct {
	Token string        `json:"token"`
	Role  database.Role `json:"role"`
}
