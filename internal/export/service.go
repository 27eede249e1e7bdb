// Package export produces XLSX summaries of processed documents.
package export

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/entity"
)

// Row is one processed document in a batch summary.
type Row struct {
	File        string
	Status      constants.JobStatus
	Category    constants.Category
	Score       int
	NeedsReview bool
	Reason      string
	Fields      map[string]entity.ExtractedField
	Warnings    []string
}

// Service is a tiny façade that turns batch results into XLSX bytes.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// SummaryXLSX returns a workbook with one row per document plus a flattened
// field dump. Fields render through StringValue so missing values come out
// blank, never as "null".
func (s *Service) SummaryXLSX(rows []Row) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Documents"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"File",
		"Status",
		"Category",
		"Score",
		"Needs Review",
		"Reason",
		"Extracted Fields",
		"Warnings",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, r := range rows {
		rowNum := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, rowNum)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, r.File)
		write(2, string(r.Status))
		write(3, string(r.Category))
		write(4, r.Score)
		write(5, r.NeedsReview)
		write(6, truncate(r.Reason, 140))
		write(7, flattenFields(r.Fields))
		write(8, truncate(joinLines(r.Warnings), 300))
	}

	_ = f.SetColWidth(sheet, "A", "A", 40)
	_ = f.SetColWidth(sheet, "B", "C", 16)
	_ = f.SetColWidth(sheet, "D", "E", 12)
	_ = f.SetColWidth(sheet, "F", "F", 40)
	_ = f.SetColWidth(sheet, "G", "G", 60)
	_ = f.SetColWidth(sheet, "H", "H", 50)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func flattenFields(fields map[string]entity.ExtractedField) string {
	if len(fields) == 0 {
		return ""
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	out := ""
	for _, name := range names {
		f := fields[name]
		if out != "" {
			out += "; "
		}
		out += fmt.Sprintf("%s=%s (%d)", name, f.StringValue(), f.Confidence)
	}
	return out
}

func joinLines(ss []string) string {
	out := ""
	for _, s := range ss {
		if out != "" {
			out += "; "
		}
		out += s
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
