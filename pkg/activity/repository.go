package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/synaptica-ai/casereview/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type eventModel struct {
	ID         string         `gorm:"primaryKey;column:id"`
	Type       string         `gorm:"column:type;index"`
	Actor      string         `gorm:"column:actor"`
	Role       string         `gorm:"column:role"`
	DonorID    string         `gorm:"column:donor_id;index"`
	DocumentID string         `gorm:"column:document_id"`
	Payload    datatypes.JSON `gorm:"column:payload"`
	OccurredAt time.Time      `gorm:"column:occurred_at;index"`
	CreatedAt  time.Time      `gorm:"column:created_at"`
}

func (eventModel) TableName() string { return "activity_events" }

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&eventModel{})
}

// Save stores an event once. Redelivered events with a known id are ignored.
func (r *Repository) Save(ctx context.Context, event models.ActivityEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encoding activity payload: %w", err)
	}
	row := &eventModel{
		ID:         event.ID,
		Type:       event.Type,
		Actor:      event.Actor,
		Role:       string(event.Role),
		DonorID:    event.DonorID,
		DocumentID: event.DocumentID,
		Payload:    datatypes.JSON(payload),
		OccurredAt: event.Timestamp,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
}

func (r *Repository) List(ctx context.Context, f Filter) ([]models.ActivityEvent, error) {
	q := r.db.WithContext(ctx).Order("occurred_at DESC").Limit(f.Limit)
	if f.DonorID != "" {
		q = q.Where("donor_id = ?", f.DonorID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	var rows []eventModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.ActivityEvent, 0, len(rows))
	for _, row := range rows {
		event := models.ActivityEvent{
			ID:         row.ID,
			Type:       row.Type,
			Actor:      row.Actor,
			Role:       models.Role(row.Role),
			DonorID:    row.DonorID,
			DocumentID: row.DocumentID,
			Timestamp:  row.OccurredAt,
		}
		if len(row.Payload) > 0 {
			_ = json.Unmarshal(row.Payload, &event.Payload)
		}
		out = append(out, event)
	}
	return out, nil
}
