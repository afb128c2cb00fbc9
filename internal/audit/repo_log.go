package audit

import (
	"context"
	"log/slog"
)

// LogRepo writes events as structured "audit" log records.
type LogRepo struct {
	log *slog.Logger
}

func NewLogRepo(l *slog.Logger) *LogRepo {
	if l == nil {
		l = slog.Default()
	}
	return &LogRepo{log: l}
}

func (r *LogRepo) Append(ctx context.Context, e Event) error {
	r.log.InfoContext(ctx, "audit",
		"event_id", e.ID,
		"type", string(e.Type),
		"actor_subject", e.ActorSubject,
		"actor_name", e.ActorName,
		"ip", e.IPAddress,
		"target_user_id", e.TargetUserID,
		"columns", e.Columns,
		"created_at", e.CreatedAt,
	)
	return nil
}
