package storage

import (
	"github.com/tphan267/roomlink/pkg/storage/repositories"
	"gorm.io/gorm"
)

// Storage is the local cache backing canvas snapshots and chat history
type Storage interface {
	// DB returns the underlying GORM database instance
	DB() *gorm.DB

	Canvas() *repositories.CanvasRepository
	Chat() *repositories.ChatRepository

	Close() error
}
