package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only; there are no Update or Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records user mutations. Callers treat it as best-effort.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, l *slog.Logger) *Service {
	if l == nil {
		l = slog.Default()
	}
	return &Service{repo: repo, log: l, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" || e.TargetUserID == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if e.Columns != nil {
		e.Columns = append([]string(nil), e.Columns...)
	}
	return s.repo.Append(ctx, e)
}

// Record appends an event and logs, rather than returns, any failure.
func (s *Service) Record(ctx context.Context, typ EventType, actor Actor, targetUserID string, columns ...string) {
	err := s.Append(ctx, Event{
		Type:         typ,
		ActorSubject: actor.Subject,
		ActorName:    actor.Name,
		IPAddress:    actor.IP,
		TargetUserID: targetUserID,
		Columns:      columns,
	})
	if err != nil {
		s.log.WarnContext(ctx, "audit append failed", "type", string(typ), "target_user_id", targetUserID, "err", err)
	}
}
