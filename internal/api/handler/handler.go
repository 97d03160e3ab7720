package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/jon4hz/chartwise/internal/api/auth"
	"github.com/jon4hz/chartwise/internal/api/models"
	"github.com/jon4hz/chartwise/internal/apperr"
	"github.com/jon4hz/chartwise/internal/config"
	"github.com/jon4hz/chartwise/internal/engine"
	"github.com/jon4hz/chartwise/internal/sheet"
)

// multipart framing on top of the file itself
const multipartOverhead = 1 << 20

var (
	errInvalidBody   = apperr.Validation("invalid request body")
	errChartNotFound = apperr.NotFound("chart not found")
)

type Handler struct {
	engine *engine.Engine
	config *config.Config
}

func New(eng *engine.Engine, cfg *config.Config) *Handler {
	return &Handler{
		engine: eng,
		config: cfg,
	}
}

func parseUintParam(param string) (uint, error) {
	var id uint64
	var err error
	if id, err = strconv.ParseUint(param, 10, 0); err != nil {
		return 0, err
	}
	return uint(id), nil
}

// respondError writes err as {"error": msg} with the status of its kind.
// Server side failures are logged with their cause, which never reaches the client.
func respondError(c *gin.Context, err error) {
	status := apperr.KindOf(err).Status()
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": apperr.PublicMessage(err)})
}

// Health reports that the server is up.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Upload parses the uploaded spreadsheet and auto-saves a chart for it.
func (h *Handler) Upload(c *gin.Context) {
	user := auth.IdentityFrom(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.Upload.MaxSize+multipartOverhead)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, apperr.Validation(fmt.Sprintf("file exceeds the %s upload limit", h.config.MaxUploadSize())))
			return
		}
		respondError(c, apperr.Validation("no file uploaded"))
		return
	}

	f, err := fh.Open()
	if err != nil {
		respondError(c, apperr.Wrap(apperr.KindUnknown, "failed to open upload", err))
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		respondError(c, apperr.Wrap(apperr.KindUnknown, "failed to read upload", err))
		return
	}

	override := sheet.Config{
		ChartType: c.PostForm("chartType"),
		XKey:      c.PostForm("xKey"),
		YKey:      c.PostForm("yKey"),
		Title:     c.PostForm("title"),
	}

	res, err := h.engine.Upload(c.Request.Context(), user, engine.UploadFile{Name: fh.Filename, Content: content}, override)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// SaveChart stores a chart configured by the user.
func (h *Handler) SaveChart(c *gin.Context) {
	var req models.SaveChartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errInvalidBody)
		return
	}

	chart, err := h.engine.SaveChart(c.Request.Context(), auth.IdentityFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Chart metadata saved",
		"meta":    chart,
	})
}

// GetChart returns a single chart of the caller.
func (h *Handler) GetChart(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		respondError(c, errChartNotFound)
		return
	}

	chart, err := h.engine.GetChart(c.Request.Context(), auth.IdentityFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chart": chart})
}

// UpdateChart applies a partial update, including pin toggles.
func (h *Handler) UpdateChart(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		respondError(c, errChartNotFound)
		return
	}

	var req models.UpdateChartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errInvalidBody)
		return
	}

	chart, err := h.engine.UpdateChart(c.Request.Context(), auth.IdentityFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Chart updated successfully",
		"chart":   chart,
	})
}

// ChartHistory lists the caller's unpinned charts.
func (h *Handler) ChartHistory(c *gin.Context) {
	charts, err := h.engine.ChartHistory(c.Request.Context(), auth.IdentityFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": charts})
}

// SavedCharts lists the caller's pinned charts.
func (h *Handler) SavedCharts(c *gin.Context) {
	charts, err := h.engine.SavedCharts(c.Request.Context(), auth.IdentityFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"savedCharts": charts})
}

// DeleteChart deletes a chart of the caller.
func (h *Handler) DeleteChart(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		respondError(c, errChartNotFound)
		return
	}

	if err := h.engine.DeleteChart(c.Request.Context(), auth.IdentityFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chart deleted successfully"})
}

// Summary asks the language model about the chart data and returns {summary}.
func (h *Handler) Summary(c *gin.Context) {
	h.insight(c, "summary")
}

// Insight is Summary under the key the chart view reads.
func (h *Handler) Insight(c *gin.Context) {
	h.insight(c, "insight")
}

func (h *Handler) insight(c *gin.Context, key string) {
	var req models.InsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errInvalidBody)
		return
	}

	text, err := h.engine.Summarize(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{key: text})
}
