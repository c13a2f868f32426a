package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/lgu-bplo/bizpermit-backend/internal/storage"
	"github.com/lgu-bplo/bizpermit-backend/pkg/logger"
	"github.com/xuri/excelize/v2"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	reportFolder    = "reports/permits"
	reportLinkTTL   = 24 * time.Hour
)

// ReportArchive stores a generated report and returns where to fetch it.
type ReportArchive interface {
	Upload(ctx context.Context, folder, filename, contentType string, body []byte, expiry time.Duration) (*storage.StoredObject, error)
}

type RegistryExport struct {
	Filename    string                `json:"filename"`
	ContentType string                `json:"content_type"`
	Rows        int                   `json:"rows"`
	Content     []byte                `json:"-"`
	Archived    *storage.StoredObject `json:"archived,omitempty"`
}

type ReportService interface {
	ExportRegistry(ctx context.Context, actor model.Actor, query SearchQuery) (*RegistryExport, error)
}

type reportService struct {
	permits PermitService
	archive ReportArchive
	now     func() time.Time
}

// NewReportService builds the exporter. archive may be nil, in which case
// exports are only returned to the caller.
func NewReportService(permits PermitService, archive *storage.S3Storage) ReportService {
	s := &reportService{permits: permits, now: time.Now}
	if archive != nil {
		s.archive = archive
	}
	return s
}

var registryColumns = []interface{}{
	"Permit No.", "Business Name", "Trade Name", "Business Type", "Owner",
	"Address", "Status", "Display Status", "Application Date", "Issue Date",
	"Expiry Date", "Days Remaining", "Total Fee", "Amount Paid", "Payment Status",
	"Renewals",
}

// ExportRegistry writes every permit matching query to an XLSX workbook.
// Archiving failures are logged and the workbook is still returned.
func (s *reportService) ExportRegistry(ctx context.Context, actor model.Actor, query SearchQuery) (*RegistryExport, error) {
	rows, err := s.permits.SearchAll(ctx, actor, query)
	if err != nil {
		return nil, err
	}

	content, err := buildRegistryWorkbook(rows)
	if err != nil {
		logger.Error("Failed to build registry workbook", err, map[string]interface{}{
			"rows": len(rows),
		})
		return nil, err
	}

	export := &RegistryExport{
		Filename:    fmt.Sprintf("permit-registry-%s.xlsx", s.now().Format("20060102-150405")),
		ContentType: xlsxContentType,
		Rows:        len(rows),
		Content:     content,
	}

	if s.archive != nil {
		obj, err := s.archive.Upload(ctx, reportFolder, export.Filename, xlsxContentType, content, reportLinkTTL)
		if err != nil {
			logger.Warn("Failed to archive registry export", map[string]interface{}{
				"filename": export.Filename,
				"error":    err.Error(),
			})
		} else {
			export.Archived = obj
		}
	}

	logger.Info("Registry export generated", map[string]interface{}{
		"filename": export.Filename,
		"rows":     export.Rows,
		"archived": export.Archived != nil,
		"actor_id": actor.UserID,
	})
	return export, nil
}

func buildRegistryWorkbook(rows []PermitView) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Permits"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheet, "A1", &registryColumns); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return nil, err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := registryRow(row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func registryRow(v PermitView) []interface{} {
	permitNumber := ""
	if v.PermitNumber != nil {
		permitNumber = *v.PermitNumber
	}
	businessType := ""
	if v.BusinessType != nil {
		businessType = v.BusinessType.Name
	}
	return []interface{}{
		permitNumber,
		v.BusinessName,
		v.TradeName,
		businessType,
		v.OwnerName,
		v.Address,
		string(v.Status),
		string(v.DisplayStatus),
		v.ApplicationDate.Format("2006-01-02"),
		formatDate(v.IssueDate),
		formatDate(v.ExpiryDate),
		v.DaysRemaining,
		v.TotalFee.StringFixed(2),
		v.AmountPaid.StringFixed(2),
		string(v.PaymentStatus),
		v.RenewalCount,
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
