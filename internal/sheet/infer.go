package sheet

import (
	"slices"

	"github.com/jon4hz/chartwise/internal/apperr"
)

// DefaultChartType is the chart type chosen by inference.
const DefaultChartType = "bar"

// ErrTooFewNumeric is returned when inference cannot find an x and a y column.
var ErrTooFewNumeric = apperr.Validation("file must contain at least two numeric columns for auto-charting")

// Config is a chart configuration derived from or checked against a sheet.
type Config struct {
	ChartType string
	XKey      string
	YKey      string
	Title     string
}

// NumericColumns returns, in header order, the headers whose value in the first
// data row is a number.
func (t *Table) NumericColumns() []string {
	if len(t.Rows) == 0 {
		return nil
	}
	first := t.Rows[0]
	var cols []string
	for _, h := range t.Headers {
		if first[h].IsNumber() {
			cols = append(cols, h)
		}
	}
	return cols
}

// InferConfig picks the first two numeric columns as x and y.
func (t *Table) InferConfig() (Config, error) {
	cols := t.NumericColumns()
	if len(cols) < 2 {
		return Config{}, ErrTooFewNumeric
	}
	return Config{
		ChartType: DefaultChartType,
		XKey:      cols[0],
		YKey:      cols[1],
		Title:     Title(cols[0], cols[1]),
	}, nil
}

// Resolve fills in a client supplied configuration. An empty override falls
// back to inference; otherwise both keys must name sheet headers and the
// missing fields get defaults.
func (t *Table) Resolve(override Config) (Config, error) {
	if override.XKey == "" && override.YKey == "" {
		cfg, err := t.InferConfig()
		if err != nil {
			return Config{}, err
		}
		if override.ChartType != "" {
			cfg.ChartType = override.ChartType
		}
		if override.Title != "" {
			cfg.Title = override.Title
		}
		return cfg, nil
	}

	if override.XKey == "" || override.YKey == "" {
		return Config{}, apperr.Validation("xKey and yKey must be given together")
	}
	if !slices.Contains(t.Headers, override.XKey) {
		return Config{}, apperr.Validation("xKey is not a column of the file")
	}
	if !slices.Contains(t.Headers, override.YKey) {
		return Config{}, apperr.Validation("yKey is not a column of the file")
	}
	if override.ChartType == "" {
		override.ChartType = DefaultChartType
	}
	if override.Title == "" {
		override.Title = Title(override.XKey, override.YKey)
	}
	return override, nil
}

// Title is the default chart title for the given axes.
func Title(x, y string) string {
	return y + " vs " + x
}
