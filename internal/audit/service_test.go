package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestService_AppendRequiresTypeAndTarget(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)

	if err := svc.Append(context.Background(), Event{Type: EventUserCreated}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected invalid event, got %v", err)
	}
	if err := svc.Append(context.Background(), Event{TargetUserID: "u"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected invalid event, got %v", err)
	}
}

func TestService_RecordFillsIDAndTime(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.clock = func() time.Time { return fixed }

	cols := []string{"username", "email"}
	svc.Record(context.Background(), EventUserUpdated, Actor{Subject: "sub-1", Name: "alice", IP: "10.0.0.1"}, "user-1", cols...)
	cols[0] = "mutated"

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	e := evs[0]
	if e.ID == "" || !e.CreatedAt.Equal(fixed) {
		t.Fatalf("expected id and created_at to be set: %+v", e)
	}
	if e.ActorSubject != "sub-1" || e.IPAddress != "10.0.0.1" || e.TargetUserID != "user-1" {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.Columns[0] != "username" {
		t.Fatalf("event columns must not alias the caller slice: %v", e.Columns)
	}
}

type failingRepo struct{}

func (failingRepo) Append(context.Context, Event) error { return errors.New("disk full") }

func TestService_RecordIsBestEffort(t *testing.T) {
	var buf bytes.Buffer
	svc := NewService(failingRepo{}, slog.New(slog.NewJSONHandler(&buf, nil)))

	svc.Record(context.Background(), EventUserDeleted, Actor{}, "user-1")

	if !strings.Contains(buf.String(), "audit append failed") {
		t.Fatalf("expected warning log, got %q", buf.String())
	}
}

func TestLogRepo(t *testing.T) {
	var buf bytes.Buffer
	svc := NewService(NewLogRepo(slog.New(slog.NewJSONHandler(&buf, nil))), nil)

	svc.Record(context.Background(), EventUserCreated, Actor{Subject: "sub-9"}, "user-9")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "audit" || rec["type"] != "user_created" || rec["target_user_id"] != "user-9" {
		t.Fatalf("unexpected record: %v", rec)
	}
}
