package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codyde/sentryvibe-sub001/internal/domain"
	"github.com/codyde/sentryvibe-sub001/internal/ports"
)

// SQLitePortRepository implements ports.PortRepository using GORM
type SQLitePortRepository struct {
	db *gorm.DB
}

// Verify interface compliance at compile time
var _ ports.PortRepository = (*SQLitePortRepository)(nil)

// NewPortRepository creates a port repository on an open handle
func NewPortRepository(db *gorm.DB) *SQLitePortRepository {
	return &SQLitePortRepository{db: db}
}

// AllocationForProject implements PortRepository.AllocationForProject
func (r *SQLitePortRepository) AllocationForProject(ctx context.Context, projectID string) (*domain.PortAllocation, error) {
	var model PortAllocationModel
	err := withRetry(func() error {
		return r.db.WithContext(ctx).
			Where("project_id = ?", projectID).
			First(&model).Error
	}, 3)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	allocation := portModelToDomain(model)
	return &allocation, nil
}

// Assign implements PortRepository.Assign. The row lock on the target
// port serializes concurrent reservations of the same port; different
// ports proceed in parallel.
func (r *SQLitePortRepository) Assign(ctx context.Context, projectID string, port int, framework string) error {
	return withRetry(func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var row PortAllocationModel
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("port = ?", port).
				First(&row).Error
			exists := err == nil
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			if exists && row.ProjectID != nil && *row.ProjectID != projectID {
				return domain.ErrPortTaken
			}

			// Clear any prior reservation the project held elsewhere
			if err := tx.Model(&PortAllocationModel{}).
				Where("project_id = ? AND port <> ?", projectID, port).
				Update("project_id", nil).Error; err != nil {
				return fmt.Errorf("failed to clear prior reservation: %w", err)
			}

			now := time.Now().UTC()
			if exists {
				return tx.Model(&PortAllocationModel{}).
					Where("port = ?", port).
					Updates(map[string]any{
						"project_id":  projectID,
						"framework":   framework,
						"reserved_at": now,
					}).Error
			}

			return tx.Create(&PortAllocationModel{
				Framework:  framework,
				Port:       port,
				ProjectID:  &projectID,
				ReservedAt: now,
			}).Error
		})
	}, 3)
}

// Release implements PortRepository.Release. Rows are kept for reuse.
func (r *SQLitePortRepository) Release(ctx context.Context, projectID string) error {
	return withRetry(func() error {
		return r.db.WithContext(ctx).Model(&PortAllocationModel{}).
			Where("project_id = ?", projectID).
			Update("project_id", nil).Error
	}, 3)
}

// ReleaseOlderThan implements PortRepository.ReleaseOlderThan
func (r *SQLitePortRepository) ReleaseOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var released int64
	err := withRetry(func() error {
		result := r.db.WithContext(ctx).Model(&PortAllocationModel{}).
			Where("project_id IS NOT NULL AND reserved_at < ?", cutoff.UTC()).
			Where("project_id NOT IN (SELECT project_id FROM sessions WHERE status IN ('pending','active'))").
			Update("project_id", nil)
		if result.Error != nil {
			return result.Error
		}
		released = result.RowsAffected
		return nil
	}, 3)
	return int(released), err
}
