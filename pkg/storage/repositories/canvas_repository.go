package repositories

import (
	"errors"
	"fmt"

	"github.com/tphan267/roomlink/pkg/models"
	"github.com/vmihailenco/msgpack/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSnapshotNotFound is returned when a room has no cached canvas
var ErrSnapshotNotFound = errors.New("canvas snapshot not found")

type CanvasRepository struct {
	db *gorm.DB
}

func NewCanvasRepository(db *gorm.DB) *CanvasRepository {
	return &CanvasRepository{db: db}
}

// SaveSnapshot replaces the cached stroke log of a room
func (r *CanvasRepository) SaveSnapshot(roomID string, strokes []models.Stroke) error {
	if roomID == "" {
		return fmt.Errorf("room id cannot be empty")
	}

	data, err := msgpack.Marshal(strokes)
	if err != nil {
		return fmt.Errorf("failed to encode strokes: %w", err)
	}

	snapshot := &models.CanvasSnapshot{
		RoomID:      roomID,
		Data:        data,
		StrokeCount: len(strokes),
	}
	return r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(snapshot).Error
}

// LoadSnapshot returns the cached stroke log of a room
func (r *CanvasRepository) LoadSnapshot(roomID string) ([]models.Stroke, error) {
	var snapshot models.CanvasSnapshot
	if err := r.db.Where("room_id = ?", roomID).First(&snapshot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}

	var strokes []models.Stroke
	if err := msgpack.Unmarshal(snapshot.Data, &strokes); err != nil {
		return nil, fmt.Errorf("failed to decode strokes: %w", err)
	}
	return strokes, nil
}
