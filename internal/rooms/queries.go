package rooms

import (
	"context"

	"github.com/bissquit/crisis-room/internal/domain"
)

// Page selects a window of a log. A zero Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

// CommunicationFilters holds filter options for listing communications.
type CommunicationFilters struct {
	Channel *domain.ChannelType
	Type    *domain.CommunicationType
	Page
}

// ResponseFilters holds filter options for listing responses.
type ResponseFilters struct {
	Type *domain.ResponseType
	Page
}

// ListCommunications returns the room's communications in send order.
func (s *Service) ListCommunications(ctx context.Context, id string, filters CommunicationFilters) ([]domain.Communication, int, error) {
	room, err := s.repo.GetRoom(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]domain.Communication, 0, len(room.Communications))
	for _, c := range room.Communications {
		if filters.Channel != nil && c.Channel != *filters.Channel {
			continue
		}
		if filters.Type != nil && c.Type != *filters.Type {
			continue
		}
		matched = append(matched, c)
	}
	return paginate(matched, filters.Page), len(matched), nil
}

// ListResponses returns the room's responses in arrival order.
func (s *Service) ListResponses(ctx context.Context, id string, filters ResponseFilters) ([]domain.Response, int, error) {
	room, err := s.repo.GetRoom(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]domain.Response, 0, len(room.Responses))
	for _, r := range room.Responses {
		if filters.Type != nil && r.ResponseType != *filters.Type {
			continue
		}
		matched = append(matched, r)
	}
	return paginate(matched, filters.Page), len(matched), nil
}

// ListEscalations returns the room's escalations, lowest level first.
func (s *Service) ListEscalations(ctx context.Context, id string, page Page) ([]domain.Escalation, int, error) {
	room, err := s.repo.GetRoom(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	return paginate(room.Escalations, page), len(room.Escalations), nil
}

// ListTimeline returns the room's audit log, oldest first.
func (s *Service) ListTimeline(ctx context.Context, id string, page Page) ([]domain.TimelineEntry, int, error) {
	room, err := s.repo.GetRoom(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	return paginate(room.Timeline, page), len(room.Timeline), nil
}

func paginate[T any](items []T, page Page) []T {
	if page.Offset >= len(items) {
		return []T{}
	}
	items = items[max(page.Offset, 0):]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}
