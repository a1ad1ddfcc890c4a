package guestbook

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/mattcarabine/wedding-website/pkg/types"
)

const maxMessageLength = 2000

// Service stores and lists guest-book messages
type Service struct {
	db *gorm.DB
}

// NewService creates the guestbook service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Create validates and stores one guest message
func (s *Service) Create(ctx context.Context, author, message string) (*types.GuestMessage, error) {
	author = strings.TrimSpace(author)
	message = strings.TrimSpace(message)

	if author == "" {
		return nil, fmt.Errorf("author is required")
	}
	if message == "" {
		return nil, fmt.Errorf("message is required")
	}
	if len(message) > maxMessageLength {
		return nil, fmt.Errorf("message exceeds %d characters", maxMessageLength)
	}

	entry := &types.GuestMessage{
		Author:  author,
		Message: message,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("store guest message: %w", err)
	}

	log.Info().Str("author", author).Msg("guest message created")
	return entry, nil
}

// List returns all guest messages newest-first
func (s *Service) List(ctx context.Context) ([]types.GuestMessage, error) {
	var messages []types.GuestMessage
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list guest messages: %w", err)
	}
	return messages, nil
}
