package repositories

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tphan267/roomlink/pkg/models"
	"gorm.io/gorm"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// AddMessage stores one chat line. A missing ID is generated.
func (r *ChatRepository) AddMessage(record *models.ChatRecord) error {
	if record.RoomID == "" {
		return fmt.Errorf("room id cannot be empty")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	return r.db.Create(record).Error
}

// ListMessages returns the newest limit lines of a room, oldest first.
// A limit of zero or less returns everything.
func (r *ChatRepository) ListMessages(roomID string, limit int) ([]*models.ChatRecord, error) {
	var records []*models.ChatRecord
	q := r.db.Where("room_id = ?", roomID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}
