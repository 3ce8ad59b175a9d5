// Package report exports learner progress as an Excel workbook.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-journeys/internal/gating"
	"github.com/p-n-ai/pai-journeys/internal/journey"
)

const (
	summarySheet  = "Summary"
	maxSheetName  = 31
	percentFormat = 9 // builtin "0%"
)

var summaryHeader = []any{"Course", "Title", "Levels", "Completed", "Percent", "Points", "Course completed"}

var levelHeader = []any{"Level", "Title", "Status", "Points", "Tested out"}

// Build creates a workbook with a Summary sheet and one sheet per course.
// The caller owns the returned file and must Close it.
func Build(views []journey.CourseView) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename summary sheet: %w", err)
	}
	if err := fill(f, views); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// Write builds the workbook and writes it to w.
func Write(w io.Writer, views []journey.CourseView) error {
	f, err := Build(views)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func fill(f *excelize.File, views []journey.CourseView) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	pct, err := f.NewStyle(&excelize.Style{NumFmt: percentFormat})
	if err != nil {
		return fmt.Errorf("create percent style: %w", err)
	}

	if err := writeRow(f, summarySheet, 1, summaryHeader); err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet, "A1", "G1", bold); err != nil {
		return fmt.Errorf("style summary header: %w", err)
	}

	used := map[string]bool{strings.ToLower(summarySheet): true}
	for i, v := range views {
		row := i + 2
		completed := 0
		for _, l := range v.Levels {
			if l.Status == gating.StatusCompleted {
				completed++
			}
		}
		if err := writeRow(f, summarySheet, row, []any{
			v.CourseID, v.Title, len(v.Levels), completed, v.Percent, v.Points, v.CourseCompleted,
		}); err != nil {
			return err
		}
		cell, _ := excelize.CoordinatesToCellName(5, row)
		if err := f.SetCellStyle(summarySheet, cell, cell, pct); err != nil {
			return fmt.Errorf("style percent: %w", err)
		}

		sheet := sheetName(v.CourseID, used)
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}
		if err := writeRow(f, sheet, 1, levelHeader); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", "E1", bold); err != nil {
			return fmt.Errorf("style %s header: %w", sheet, err)
		}
		for j, l := range v.Levels {
			if err := writeRow(f, sheet, j+2, []any{
				l.ID, l.Title, string(l.Status), l.Points, l.TestedOut,
			}); err != nil {
				return err
			}
		}
		if err := f.SetColWidth(sheet, "B", "B", 32); err != nil {
			return fmt.Errorf("size %s columns: %w", sheet, err)
		}
	}
	if err := f.SetColWidth(summarySheet, "A", "B", 28); err != nil {
		return fmt.Errorf("size summary columns: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// sheetName returns a unique, Excel-safe sheet name for a course ID.
func sheetName(courseID string, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, courseID)
	if name == "" {
		name = "course"
	}
	base := []rune(name)
	if len(base) > maxSheetName {
		base = base[:maxSheetName]
	}
	name = string(base)
	for n := 2; used[strings.ToLower(name)]; n++ {
		suffix := fmt.Sprintf("~%d", n)
		cut := min(len(base), maxSheetName-len(suffix))
		name = string(base[:cut]) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}
