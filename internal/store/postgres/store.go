// Package postgres provides a vocabulary store on a shared Postgres database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DoyleJ11/kkuko-relay/internal/store"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type wordRow struct {
	ID        int64  `gorm:"primaryKey"`
	Word      string `gorm:"uniqueIndex;not null"`
	Themes    string `gorm:"not null;default:''"`
	UpdatedAt time.Time
}

func (wordRow) TableName() string { return "words" }

func (r wordRow) entry() store.Entry {
	return store.Entry{ID: r.ID, Word: r.Word, Theme: r.Themes, UpdatedAt: r.UpdatedAt.UTC()}
}

type Store struct {
	db *gorm.DB
}

var _ store.WordStore = (*Store)(nil)

// Open connects with pgx through gorm and migrates the words table.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("database url is required")
	}
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetMaxOpenConns(4)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&wordRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate words: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Upsert(ctx context.Context, word, theme string) error {
	if word == "" {
		return store.ErrInvalidWord
	}
	row := wordRow{Word: word, Themes: theme, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "word"}},
		DoUpdates: clause.AssignmentColumns([]string{"themes", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert word: %w", err)
	}
	return nil
}

func (s *Store) ListAll(ctx context.Context) ([]store.Entry, error) {
	var rows []wordRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list words: %w", err)
	}
	return entries(rows), nil
}

func (s *Store) Find(ctx context.Context, keyword string) ([]store.Entry, error) {
	var rows []wordRow
	err := s.db.WithContext(ctx).
		Where("word LIKE ?", store.LikePattern(keyword)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find words: %w", err)
	}
	return entries(rows), nil
}

func (s *Store) Delete(ctx context.Context, word string) error {
	res := s.db.WithContext(ctx).Where("word = ?", word).Delete(&wordRow{})
	if res.Error != nil {
		return fmt.Errorf("delete word: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func entries(rows []wordRow) []store.Entry {
	out := make([]store.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out
}
