package vitecsync

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// ExportSessionHandler streams the session's diff as an xlsx workbook, one
// sheet per record kind, so an operator can review a large preview offline.
func ExportSessionHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := svc.GetSession(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		resp, err := SessionToResponse(session)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		f := excelize.NewFile()
		if err := writeSummarySheet(f, &resp); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := writeDiffSheet(f, "Offices", resp.Offices); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := writeDiffSheet(f, "Employees", resp.Employees); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		f.DeleteSheet("Sheet1")

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=sync-session-"+session.ID+".xlsx")
		if err := f.Write(c.Writer); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write file"})
		}
	}
}

func writeSummarySheet(f *excelize.File, resp *SessionResponse) error {
	sheet := "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"session_id", resp.SessionId},
		{"status", resp.Status},
		{"created_at", resp.CreatedAt},
		{"expires_at", resp.ExpiresAt},
		{},
		{"", "new", "matched", "not_in_external"},
		{"offices", resp.Summary.Offices.New, resp.Summary.Offices.Matched, resp.Summary.Offices.NotInExternal},
		{"employees", resp.Summary.Employees.New, resp.Summary.Employees.Matched, resp.Summary.Employees.NotInExternal},
	}
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeDiffSheet(f *excelize.File, sheet string, records []RecordDiff) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	headings := []string{"record_id", "match_type", "match_method", "confidence", "display_name", "field", "local_value", "external_value", "conflict", "decision"}
	for j, h := range headings {
		cell, err := excelize.CoordinatesToCellName(j+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	rowNo := 2
	for i := range records {
		record := &records[i]
		if len(record.Fields) == 0 {
			if err := writeDiffRow(f, sheet, rowNo, record, nil); err != nil {
				return err
			}
			rowNo++
			continue
		}
		for j := range record.Fields {
			if err := writeDiffRow(f, sheet, rowNo, record, &record.Fields[j]); err != nil {
				return err
			}
			rowNo++
		}
	}
	return nil
}

func writeDiffRow(f *excelize.File, sheet string, rowNo int, record *RecordDiff, field *FieldDiff) error {
	values := []interface{}{
		record.RecordId,
		record.MatchType,
		record.MatchMethod,
		record.MatchConfidence,
		record.DisplayName,
	}
	if field != nil {
		values = append(values,
			field.FieldName,
			exportValue(field.LocalValue, field.LocalValues),
			exportValue(field.ExternalValue, field.ExternalValues),
			field.HasConflict,
			field.Decision,
		)
	}
	for j, value := range values {
		cell, err := excelize.CoordinatesToCellName(j+1, rowNo)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return err
		}
	}
	return nil
}

func exportValue(scalar *string, list []string) string {
	if scalar != nil {
		return *scalar
	}
	if len(list) > 0 {
		return strings.Join(list, ", ")
	}
	return ""
}
