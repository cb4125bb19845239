package storage

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/tphan267/roomlink/pkg/logger"
	"github.com/tphan267/roomlink/pkg/models"
	"github.com/tphan267/roomlink/pkg/storage/repositories"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SQLiteStorage implements Storage interface using SQLite
type SQLiteStorage struct {
	db     *gorm.DB
	logger *logger.Logger

	canvasRepo *repositories.CanvasRepository
	chatRepo   *repositories.ChatRepository
}

// NewSQLiteStorage opens dbPath (":memory:" works for tests) and migrates the schema
func NewSQLiteStorage(dbPath string, appLogger *logger.Logger) (*SQLiteStorage, error) {
	if appLogger == nil {
		appLogger = logger.Discard()
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&models.CanvasSnapshot{}, &models.ChatRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	appLogger.Info("[Storage] SQLite database opened: %s", dbPath)

	return &SQLiteStorage{
		db:         db,
		logger:     appLogger,
		canvasRepo: repositories.NewCanvasRepository(db),
		chatRepo:   repositories.NewChatRepository(db),
	}, nil
}

// DB returns the underlying GORM database instance
func (s *SQLiteStorage) DB() *gorm.DB {
	return s.db
}

// Canvas returns the canvas snapshot repository
func (s *SQLiteStorage) Canvas() *repositories.CanvasRepository {
	return s.canvasRepo
}

// Chat returns the chat history repository
func (s *SQLiteStorage) Chat() *repositories.ChatRepository {
	return s.chatRepo
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.logger.Info("[Storage] SQLite database closed")
	return nil
}
