package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"audit-service/internal/domain/audit"
)

type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (InspectionReport) TableName() string {
	return "inspection_reports"
}

type InspectionReport struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	Building    string         `gorm:"not null"`
	Room        string         `gorm:"not null"`
	Findings    datatypes.JSON `gorm:"type:jsonb;not null"`
	Score       int            `gorm:"not null"`
	Deduction   int            `gorm:"not null"`
	Status      string         `gorm:"not null"`
	Description *string
	Source      *string
	SnapshotURL *string
	CreatedAt   time.Time
}

// MaxListLimit caps a single page of reports.
const MaxListLimit = 100

// ListFilter narrows ListReports. Zero values mean no filtering.
type ListFilter struct {
	Status   string
	Building string
	Limit    int
	Offset   int
}

// Create persists one finalized inspection record.
func (r *ReportRepository) Create(ctx context.Context, input audit.ReportInput) (*audit.Report, error) {
	findings, err := json.Marshal(input.Findings)
	if err != nil {
		return nil, fmt.Errorf("marshal findings: %w", err)
	}

	row := InspectionReport{
		ID:        uuid.New(),
		Building:  input.Building,
		Room:      input.Room,
		Findings:  datatypes.JSON(findings),
		Score:     input.Score.FinalScore,
		Deduction: input.Score.Deduction,
		Status:    input.Score.Status,
		CreatedAt: time.Now(),
	}
	if input.Description != "" {
		row.Description = &input.Description
	}
	if input.Source != "" {
		row.Source = &input.Source
	}
	if input.SnapshotURL != "" {
		row.SnapshotURL = &input.SnapshotURL
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to create inspection report: %w", err)
	}

	return rowToReport(row)
}

// ListReports returns persisted reports newest first.
func (r *ReportRepository) ListReports(ctx context.Context, filter ListFilter) ([]audit.Report, error) {
	query := r.db.WithContext(ctx).Model(&InspectionReport{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Building != "" {
		query = query.Where("building = ?", filter.Building)
	}

	query = query.Order("created_at DESC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	query = query.Limit(limit)
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var rows []InspectionReport
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	reports := make([]audit.Report, 0, len(rows))
	for _, row := range rows {
		report, err := rowToReport(row)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	return reports, nil
}

// SummaryStats counts all reports and those in the critical status.
func (r *ReportRepository) SummaryStats(ctx context.Context, criticalStatus string) (audit.SummaryStats, error) {
	var stats audit.SummaryStats

	if err := r.db.WithContext(ctx).
		Model(&InspectionReport{}).
		Count(&stats.Total).Error; err != nil {
		return audit.SummaryStats{}, err
	}

	if err := r.db.WithContext(ctx).
		Model(&InspectionReport{}).
		Where("status = ?", criticalStatus).
		Count(&stats.Critical).Error; err != nil {
		return audit.SummaryStats{}, err
	}

	return stats, nil
}

func rowToReport(row InspectionReport) (*audit.Report, error) {
	findings := make(audit.AggregateDefectCounts)
	if len(row.Findings) > 0 {
		if err := json.Unmarshal(row.Findings, &findings); err != nil {
			return nil, fmt.Errorf("unmarshal findings for report %s: %w", row.ID, err)
		}
	}

	report := &audit.Report{
		ID:        row.ID,
		CreatedAt: row.CreatedAt,
		Building:  row.Building,
		Room:      row.Room,
		Findings:  findings,
		Score:     row.Score,
		Deduction: row.Deduction,
		Status:    row.Status,
	}
	if row.Description != nil {
		report.Description = *row.Description
	}
	if row.Source != nil {
		report.Source = *row.Source
	}
	if row.SnapshotURL != nil {
		report.SnapshotURL = *row.SnapshotURL
	}
	return report, nil
}
