// Package fill writes approved field values into a form template and
// verifies the produced artifact by reading it back.
package fill

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/common"
	"github.com/joseph-ayodele/docufill/internal/entity"
)

// Result is the fill outcome.
type Result struct {
	Success      bool
	FilledFields []string
	Warnings     []string
	Artifact     []byte // XLSX bytes, nil on failure
}

// Filler fills form templates from mapped fields.
type Filler struct {
	logger *slog.Logger
}

func NewFiller(logger *slog.Logger) *Filler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filler{logger: logger}
}

// Fill writes mapped values into the template's fillable fields.
//
// Guards, in order: a template with zero fillable fields is an explicit
// unsupported_form failure, never a vacuous success; null/empty values are
// skipped with a warning, never stringified; choice options are matched in
// tiers and left unset rather than guessed; and the finished artifact is
// re-read and compared against what was requested.
func (f *Filler) Fill(tmpl *Template, mapped map[string]entity.ExtractedField) (Result, *common.StageError) {
	fillable := tmpl.FillableFields()
	if len(fillable) == 0 {
		return Result{}, common.StageErrorf(constants.StageFill, common.ErrUnsupportedForm,
			"template %q has no fillable fields (unsupported or non-interactive form)", tmpl.Name)
	}

	wb := excelize.NewFile()
	defer func() {
		if err := wb.Close(); err != nil {
			f.logger.Warn("fill.workbook.close_error", "error", err)
		}
	}()
	if _, err := wb.NewSheet(tmpl.Sheet); err != nil {
		return Result{}, common.NewStageError(constants.StageFill, common.ErrUnsupportedForm,
			"create form sheet", err)
	}
	if err := wb.DeleteSheet("Sheet1"); err != nil {
		return Result{}, common.NewStageError(constants.StageFill, common.ErrUnsupportedForm,
			"prepare workbook", err)
	}

	res := Result{}
	wanted := map[string]string{} // cell -> expected rendered value

	for _, tf := range fillable {
		field, ok := mapped[tf.Name]
		if !ok || field.IsEmpty() {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("skipped field %q: no value available", tf.Name))
			continue
		}
		value := field.StringValue()

		switch tf.Kind {
		case KindCheckbox:
			checked, ok := parseBoolish(value)
			if !ok {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("skipped checkbox %q: value %q is not boolean-like", tf.Name, value))
				continue
			}
			if err := wb.SetCellBool(tmpl.Sheet, tf.Cell, checked); err != nil {
				return Result{}, common.NewStageError(constants.StageFill, common.ErrUnsupportedForm,
					fmt.Sprintf("write checkbox %q", tf.Name), err)
			}
			wanted[tf.Cell] = boolCell(checked)

		case KindChoice:
			option, tier := matchOption(value, tf.Options)
			if option == "" {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("left choice %q unset: value %q matches no option", tf.Name, value))
				continue
			}
			if tier != "exact" {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("choice %q matched option %q via %s match", tf.Name, option, tier))
			}
			if err := wb.SetCellStr(tmpl.Sheet, tf.Cell, option); err != nil {
				return Result{}, common.NewStageError(constants.StageFill, common.ErrUnsupportedForm,
					fmt.Sprintf("write choice %q", tf.Name), err)
			}
			wanted[tf.Cell] = option

		default: // text, date
			if err := wb.SetCellStr(tmpl.Sheet, tf.Cell, value); err != nil {
				return Result{}, common.NewStageError(constants.StageFill, common.ErrUnsupportedForm,
					fmt.Sprintf("write field %q", tf.Name), err)
			}
			wanted[tf.Cell] = value
		}
		res.FilledFields = append(res.FilledFields, tf.Name)
	}

	buf, err := wb.WriteToBuffer()
	if err != nil {
		return Result{}, common.NewStageError(constants.StageFill, common.ErrUnsupportedForm,
			"serialize artifact", err)
	}
	res.Artifact = buf.Bytes()

	// Verify: re-read the artifact and compare every filled cell against
	// what was requested. Disagreement is reported, never trusted away.
	mismatches, err := f.verify(res.Artifact, tmpl.Sheet, wanted)
	if err != nil {
		return Result{}, common.NewStageError(constants.StageFill, common.ErrFillVerificationMismatch,
			"re-read artifact", err)
	}
	res.Warnings = append(res.Warnings, mismatches...)

	res.Success = true
	f.logger.Info("fill.ok",
		"template", tmpl.Name,
		"filled", len(res.FilledFields),
		"warnings", len(res.Warnings),
		"artifact_bytes", len(res.Artifact),
	)
	return res, nil
}

func (f *Filler) verify(artifact []byte, sheet string, wanted map[string]string) ([]string, error) {
	rb, err := excelize.OpenReader(bytes.NewReader(artifact))
	if err != nil {
		return nil, fmt.Errorf("open produced artifact: %w", err)
	}
	defer func() {
		if err := rb.Close(); err != nil {
			f.logger.Warn("fill.verify.close_error", "error", err)
		}
	}()

	var mismatches []string
	for cell, want := range wanted {
		got, err := rb.GetCellValue(sheet, cell)
		if err != nil {
			return nil, fmt.Errorf("read back cell %s: %w", cell, err)
		}
		if !strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want)) {
			mismatches = append(mismatches,
				fmt.Sprintf("verification mismatch at %s: wrote %q, artifact holds %q", cell, want, got))
		}
	}
	return mismatches, nil
}

// matchOption applies tiered option matching: exact, then normalized
// variant, then partial/substring. No tier matching means no fill.
func matchOption(value string, options []string) (string, string) {
	for _, opt := range options {
		if value == opt {
			return opt, "exact"
		}
	}
	norm := normalizeOption(value)
	if norm == "" {
		// A blank value substring-matches every option; never guess.
		return "", ""
	}
	for _, opt := range options {
		if norm == normalizeOption(opt) {
			return opt, "normalized"
		}
	}
	for _, opt := range options {
		no := normalizeOption(opt)
		if strings.Contains(no, norm) || strings.Contains(norm, no) {
			return opt, "partial"
		}
	}
	return "", ""
}

func normalizeOption(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func parseBoolish(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "x", "checked", "on":
		return true, true
	case "false", "no", "n", "0", "unchecked", "off":
		return false, true
	}
	return false, false
}

func boolCell(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
