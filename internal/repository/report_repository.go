package repository

import (
	"context"
	"fmt"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/akkalaj75/hostelhub-v40/pkg/docstore"
)

const reportsCollection = "reports"

type ReportRepository struct {
	store docstore.Store
}

func NewReportRepository(store docstore.Store) *ReportRepository {
	return &ReportRepository{store: store}
}

// Create 신고 저장
func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	id, err := r.store.Add(ctx, reportsCollection, report)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	report.ID = id
	return nil
}

// ListByReporter 신고자 기준 조회
func (r *ReportRepository) ListByReporter(ctx context.Context, userID string) ([]*models.Report, error) {
	docs, err := r.store.Query(ctx, docstore.Query{Collection: reportsCollection}.Where("reportedBy", userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	reports := make([]*models.Report, 0, len(docs))
	for _, doc := range docs {
		var rep models.Report
		if err := doc.DataTo(&rep); err != nil {
			continue
		}
		rep.ID = doc.ID
		reports = append(reports, &rep)
	}
	return reports, nil
}
