package app

import (
	"context"
	"log/slog"

	"github.com/lynqchat/golang_services/internal/message_service/domain"
)

// Searcher runs prefix searches inside a chat.
//
// Matching is a lexicographic range over stored content. Text messages are stored encoded,
// so a plaintext prefix does not find them; the prefix is applied to the stored form as is.
type Searcher struct {
	repo   domain.MessageRepository
	logger *slog.Logger
}

func NewSearcher(repo domain.MessageRepository, logger *slog.Logger) *Searcher {
	return &Searcher{repo: repo, logger: logger.With("component", "search")}
}

// Search returns up to domain.SearchLimit messages whose content starts with prefix,
// ordered by content.
func (s *Searcher) Search(ctx context.Context, chatID, prefix string) ([]*domain.Message, error) {
	if prefix == "" {
		return nil, &domain.ValidationError{Field: "q", Reason: "must not be empty"}
	}
	if chatID == "" {
		return nil, &domain.ValidationError{Field: "chat_id", Reason: "is required"}
	}
	msgs, err := s.repo.SearchContentRange(ctx, chatID, prefix, prefix+domain.SearchSentinel, domain.SearchLimit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Search failed", "chat_id", chatID, "error", err)
		return nil, &domain.StoreError{Op: "search", Err: err}
	}
	return msgs, nil
}
