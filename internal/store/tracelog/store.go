package tracelog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"alphaseeker/internal/pkg/text"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const responseSnippetLimit = 4000

// Entry describes one model call.
type Entry struct {
	Purpose    string
	Provider   string
	Model      string
	Ticker     string
	Duration   time.Duration
	Err        error
	Response   string
	ParseStage string
	Meta       map[string]any
}

// TraceModel maps to the llm_trace table.
type TraceModel struct {
	ID         int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Purpose    string         `gorm:"column:purpose;index" json:"purpose"`
	Provider   string         `gorm:"column:provider" json:"provider"`
	Model      string         `gorm:"column:model" json:"model"`
	Ticker     string         `gorm:"column:ticker;index" json:"ticker"`
	DurationMS int64          `gorm:"column:duration_ms" json:"duration_ms"`
	OK         bool           `gorm:"column:ok" json:"ok"`
	Error      string         `gorm:"column:error" json:"error,omitempty"`
	Response   string         `gorm:"column:response" json:"response"`
	ParseStage string         `gorm:"column:parse_stage" json:"parse_stage"`
	Meta       datatypes.JSON `gorm:"column:meta" json:"meta,omitempty"`
	CreatedAt  int64          `gorm:"column:created_at;index" json:"created_at"`
}

func (TraceModel) TableName() string { return "llm_trace" }

// Store keeps an audit trail of model calls in SQLite.
type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("trace db path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return newStore(db)
}

// OpenDB wraps an existing connection (tests use an in-memory database).
func OpenDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	return newStore(db)
}

func newStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&TraceModel{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	if s == nil || s.db == nil {
		return nil
	}
	row := TraceModel{
		Purpose:    e.Purpose,
		Provider:   e.Provider,
		Model:      e.Model,
		Ticker:     e.Ticker,
		DurationMS: e.Duration.Milliseconds(),
		OK:         e.Err == nil,
		Response:   text.Truncate(e.Response, responseSnippetLimit),
		ParseStage: e.ParseStage,
		CreatedAt:  time.Now().UnixMilli(),
	}
	if e.Err != nil {
		row.Error = e.Err.Error()
	}
	if len(e.Meta) > 0 {
		raw, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("encode trace meta: %w", err)
		}
		row.Meta = datatypes.JSON(raw)
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Recent returns the newest rows first.
func (s *Store) Recent(ctx context.Context, limit int) ([]TraceModel, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var rows []TraceModel
	err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
