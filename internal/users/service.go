package users

import (
	"context"

	"user-gateway/internal/audit"
	"user-gateway/pkg/logger"
)

// Service exposes the user operations served over HTTP. Mutations are
// recorded on the audit trail after they succeed.
type Service struct {
	store Store
	audit *audit.Service
}

func NewService(store Store, a *audit.Service) *Service {
	return &Service{store: store, audit: a}
}

func (s *Service) Get(ctx context.Context, idStr string) (User, error) {
	id, err := ParseID(idStr)
	if err != nil {
		return User{}, err
	}
	return s.store.Find(ctx, id)
}

func (s *Service) Create(ctx context.Context, actor audit.Actor, in NewUser) (User, error) {
	u, err := in.Validate()
	if err != nil {
		return User{}, err
	}
	out, err := s.store.Create(ctx, u)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, audit.EventUserCreated, actor, out.ID.String())
	return out, nil
}

func (s *Service) Update(ctx context.Context, actor audit.Actor, idStr string, f UpdateFields) (User, error) {
	cmd, err := BuildUpdate(idStr, f)
	if err != nil {
		return User{}, err
	}
	out, err := s.store.Update(ctx, cmd)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, audit.EventUserUpdated, actor, cmd.UserID, cmd.Columns...)
	return out, nil
}

func (s *Service) Delete(ctx context.Context, actor audit.Actor, idStr string) error {
	id, err := ParseID(idStr)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, audit.EventUserDeleted, actor, id.String())
	return nil
}

func (s *Service) record(ctx context.Context, typ audit.EventType, actor audit.Actor, target string, cols ...string) {
	if s.audit == nil {
		logger.From(ctx).Debug("audit disabled", "type", string(typ))
		return
	}
	s.audit.Record(ctx, typ, actor, target, cols...)
}
