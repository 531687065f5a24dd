package http

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	readings "hydro-cloud/internal/readings/domain"
	"hydro-cloud/internal/readings/interfaces/payload"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

var errUnknownFormat = errors.New("unsupported export format")

var contentTypes = map[string]string{
	FormatCSV:  "text/csv",
	FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	FormatPDF:  "application/pdf",
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	unitID := mux.Vars(r)["unitId"]
	format := r.URL.Query().Get("format")
	if format == "" {
		format = FormatCSV
	}
	if _, ok := contentTypes[format]; !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%v: %s", errUnknownFormat, format))
		return
	}

	list, err := h.service.Recent(r.Context(), unitID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := BuildExport(format, unitID, list)
	if err != nil {
		h.logger.Printf("readings export: unit %s format %s: %v", unitID, format, err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(unitID, format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// BuildExport renders readings in the requested format.
func BuildExport(format, unitID string, list []readings.Reading) ([]byte, error) {
	switch format {
	case FormatCSV:
		return BuildReadingsCSV(list)
	case FormatXLSX:
		return BuildReadingsXLSX(unitID, list)
	case FormatPDF:
		return BuildReadingsPDF(unitID, list)
	default:
		return nil, errUnknownFormat
	}
}

// BuildReadingsCSV renders one row per reading with a column per metric.
func BuildReadingsCSV(list []readings.Reading) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	for _, row := range exportRows(list) {
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReadingsXLSX renders readings into a single worksheet.
func BuildReadingsXLSX(unitID string, list []readings.Reading) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "readings"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(sheet, "A1", "Unit")
	_ = f.SetCellValue(sheet, "B1", unitID)

	metrics := metricColumns(list)
	header := append([]string{"Timestamp", "Classification"}, metrics...)
	for col, title := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 3)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheet, cell, title)
	}
	for i, reading := range list {
		row := i + 4
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), payload.FormatTimestamp(reading.Timestamp))
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), string(reading.Classification))
		for j, metric := range metrics {
			value, ok := reading.Values[metric]
			if !ok {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+3, row)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReadingsPDF renders a minimal readings table.
func BuildReadingsPDF(unitID string, list []readings.Reading) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Unit Readings")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Unit: %s", unitID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(8)

	metrics := metricColumns(list)
	width := 120.0 / float64(len(metrics)+1)
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(50, 6, "Timestamp", "1", 0, "C", false, 0, "")
	pdf.CellFormat(width+10, 6, "Status", "1", 0, "C", false, 0, "")
	for _, metric := range metrics {
		pdf.CellFormat(width, 6, metric, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, reading := range list {
		pdf.CellFormat(50, 6, reading.Timestamp.Format(time.RFC3339), "1", 0, "L", false, 0, "")
		pdf.CellFormat(width+10, 6, string(reading.Classification), "1", 0, "C", false, 0, "")
		for _, metric := range metrics {
			text := ""
			if value, ok := reading.Values[metric]; ok {
				text = formatValue(value)
			}
			pdf.CellFormat(width, 6, text, "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportRows(list []readings.Reading) [][]string {
	metrics := metricColumns(list)
	rows := make([][]string, 0, len(list)+1)
	rows = append(rows, append([]string{"timestamp", "classification"}, metrics...))
	for _, reading := range list {
		row := []string{payload.FormatTimestamp(reading.Timestamp), string(reading.Classification)}
		for _, metric := range metrics {
			if value, ok := reading.Values[metric]; ok {
				row = append(row, formatValue(value))
				continue
			}
			row = append(row, "")
		}
		rows = append(rows, row)
	}
	return rows
}

// metricColumns lists required metrics first, then any extra metric names in sorted order.
func metricColumns(list []readings.Reading) []string {
	columns := append([]string(nil), readings.RequiredMetrics...)
	seen := make(map[string]struct{}, len(columns))
	for _, metric := range columns {
		seen[metric] = struct{}{}
	}
	var extra []string
	for _, reading := range list {
		for key := range reading.Values {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return append(columns, extra...)
}

func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func exportFilename(unitID, format string) string {
	return fmt.Sprintf("readings-%s.%s", unitID, format)
}
