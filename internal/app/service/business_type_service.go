package service

import (
	"fmt"
	"io"
	"strings"

	"github.com/lgu-bplo/bizpermit-backend/internal/app/model"
	"github.com/lgu-bplo/bizpermit-backend/internal/app/repository"
	"github.com/lgu-bplo/bizpermit-backend/pkg/logger"
	"github.com/xuri/excelize/v2"
)

type BusinessTypeService interface {
	List() ([]model.BusinessType, error)
	ImportXLSX(r io.Reader) (int, error)
}

type businessTypeService struct {
	repo repository.BusinessTypeRepository
}

func NewBusinessTypeService(repo repository.BusinessTypeRepository) BusinessTypeService {
	return &businessTypeService{repo: repo}
}

func (s *businessTypeService) List() ([]model.BusinessType, error) {
	return s.repo.FindAll()
}

// ImportXLSX reads the first sheet (header row, then Name, Description,
// Base Fee) and upserts every row by name.
func (s *businessTypeService) ImportXLSX(r io.Reader) (int, error) {
	types, err := ReadBusinessTypesXLSX(r)
	if err != nil {
		return 0, err
	}
	if err := s.repo.UpsertByName(types); err != nil {
		return 0, err
	}
	return len(types), nil
}

// ReadBusinessTypesXLSX parses a catalog workbook. Rows with an empty name
// are skipped; a bad fee fails the whole import.
func ReadBusinessTypesXLSX(r io.Reader) ([]model.BusinessType, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open XLSX file: %v", ErrValidation, err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("%w: no sheets found in XLSX file", ErrValidation)
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: no data rows in XLSX file", ErrValidation)
	}

	var types []model.BusinessType
	seen := make(map[string]bool)
	skipped := 0
	for i, row := range rows[1:] {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			skipped++
			continue
		}
		name := strings.TrimSpace(row[0])
		if seen[strings.ToLower(name)] {
			skipped++
			continue
		}
		seen[strings.ToLower(name)] = true

		bt := model.BusinessType{Name: name}
		if len(row) > 1 {
			bt.Description = strings.TrimSpace(row[1])
		}
		if len(row) > 2 {
			fee, err := ParseAmount("base fee", FeeAmount(strings.ReplaceAll(row[2], ",", "")))
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i+2, err)
			}
			if fee.IsNegative() {
				return nil, fmt.Errorf("row %d: %w: base fee must not be negative", i+2, ErrInvalidFee)
			}
			bt.BaseFee = fee
		}
		types = append(types, bt)
	}

	logger.Info("Business type workbook parsed", map[string]interface{}{
		"sheet":   sheetName,
		"rows":    len(types),
		"skipped": skipped,
	})
	return types, nil
}
