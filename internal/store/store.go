// Package store defines the vocabulary archive the relay writes discovered
// words to. Implementations live in the sqlite and postgres subpackages.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("word not found")
	ErrInvalidWord = errors.New("word is required")
)

// Entry is one archived word. Word is the identity, byte-exact as received.
type Entry struct {
	ID        int64     `json:"id"`
	Word      string    `json:"word"`
	Theme     string    `json:"themes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WordStore persists vocabulary. Upsert must be idempotent by word: a repeated
// word updates its theme instead of failing.
type WordStore interface {
	Upsert(ctx context.Context, word, theme string) error
	ListAll(ctx context.Context) ([]Entry, error)
	Find(ctx context.Context, keyword string) ([]Entry, error)
	Delete(ctx context.Context, word string) error
	Close() error
}

// LikePattern builds a substring LIKE pattern using backslash as the escape.
func LikePattern(keyword string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(keyword) + "%"
}
