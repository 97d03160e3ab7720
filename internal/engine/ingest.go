package engine

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jon4hz/chartwise/internal/api/models"
	"github.com/jon4hz/chartwise/internal/apperr"
	"github.com/jon4hz/chartwise/internal/database"
	"github.com/jon4hz/chartwise/internal/sheet"
)

// UploadFile is an uploaded spreadsheet.
type UploadFile struct {
	Name    string
	Content []byte
}

// Upload parses the first sheet of the file, picks a chart configuration and
// saves the chart with all rows. A non-empty override replaces inference.
func (e *Engine) Upload(ctx context.Context, user *models.Identity, file UploadFile, override sheet.Config) (*models.Upload, error) {
	if len(file.Content) == 0 {
		return nil, apperr.Validation("no file uploaded")
	}
	if int64(len(file.Content)) > e.cfg.Upload.MaxSize {
		return nil, apperr.Validation(fmt.Sprintf("file exceeds the %s upload limit", e.cfg.MaxUploadSize()))
	}

	table, err := sheet.Parse(file.Name, file.Content)
	if err != nil {
		log.Debug("rejected upload", "user_id", user.ID, "file", file.Name, "error", err)
		return nil, err
	}

	cfg, err := table.Resolve(override)
	if err != nil {
		return nil, err
	}

	chart := &database.Chart{
		UserID:    user.ID,
		ChartType: cfg.ChartType,
		XKey:      cfg.XKey,
		YKey:      cfg.YKey,
		Title:     cfg.Title,
		FileName:  file.Name,
		FileID:    uuid.NewString(),
		IsPinned:  false,
		Data:      table.Rows,
	}
	if err := e.db.CreateChart(ctx, chart); err != nil {
		return nil, apperr.Storage("failed to save chart", err)
	}

	log.Info("chart created from upload", "user_id", user.ID, "chart_id", chart.ID, "rows", len(table.Rows), "x", cfg.XKey, "y", cfg.YKey)
	return &models.Upload{
		Message: "File parsed and chart auto-saved",
		Data:    table.Rows,
		Chart:   models.ToChart(*chart),
		FileID:  chart.FileID,
	}, nil
}
