package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/testschool/assessment-backend/internal/model"
	"github.com/testschool/assessment-backend/internal/repository"
	"github.com/xuri/excelize/v2"
)

// ExportService renders admin result listings as spreadsheets.
type ExportService struct {
	testRepo *repository.TestRepository
	log      zerolog.Logger
}

// NewExportService creates a new ExportService.
func NewExportService(testRepo *repository.TestRepository, log zerolog.Logger) *ExportService {
	return &ExportService{
		testRepo: testRepo,
		log:      log.With().Str("component", "export_service").Logger(),
	}
}

const resultsSheet = "Results"

// ResultsXLSX builds an XLSX workbook of completed attempts, optionally
// filtered to one step. Pages through the full result set.
func (s *ExportService) ResultsXLSX(ctx context.Context, step *model.Step) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(resultsSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Name", "Email", "Step", "Score", "Level", "Completion Reason", "Started At", "Completed At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(resultsSheet, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	const pageSize = 500
	row := 2
	for page := 1; ; page++ {
		results, total, err := s.testRepo.ListResults(ctx, page, pageSize, step)
		if err != nil {
			return nil, fmt.Errorf("list results: %w", err)
		}

		for _, r := range results {
			values := []any{r.Name, r.Email, int(r.Step)}
			if r.Score != nil {
				values = append(values, *r.Score)
			} else {
				values = append(values, "")
			}
			if r.LevelAchieved != nil {
				values = append(values, string(*r.LevelAchieved))
			} else {
				values = append(values, "")
			}
			if r.CompletionReason != nil {
				values = append(values, string(*r.CompletionReason))
			} else {
				values = append(values, "")
			}
			values = append(values, r.StartedAt.Format("2006-01-02 15:04:05"))
			if r.CompletedAt != nil {
				values = append(values, r.CompletedAt.Format("2006-01-02 15:04:05"))
			} else {
				values = append(values, "")
			}

			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				if err := f.SetCellValue(resultsSheet, cell, v); err != nil {
					return nil, fmt.Errorf("write row: %w", err)
				}
			}
			row++
		}

		if int64(page*pageSize) >= total || len(results) == 0 {
			break
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.log.Info().Int("rows", row-2).Msg("Results workbook exported")
	return buf.Bytes(), nil
}
