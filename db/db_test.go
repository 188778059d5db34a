package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres test")
	}
	dbx, err := Connect(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { dbx.Close() })
	return dbx
}

func TestConnectEmptyDSN(t *testing.T) {
	if _, err := Connect(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestUpsertSessionRequiresStreamID(t *testing.T) {
	// validation runs before any query, so a nil handle is never touched
	if err := UpsertSession(context.Background(), nil, Session{}); err == nil {
		t.Fatal("expected error for empty stream id")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	dbx := openTestDB(t)
	ctx := context.Background()
	cleanDatabase(t, ctx, dbx)
	if err := Migrate(dbx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	first := Session{StreamID: "vid-1", ChannelID: "UC1", Continuation: "tok-a", State: "initialized",
		UpdatedAt: time.Now().Add(-time.Minute)}
	if err := UpsertSession(ctx, dbx, first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := UpsertSession(ctx, dbx, Session{StreamID: "vid-2", State: "initialized"}); err != nil {
		t.Fatalf("upsert second: %v", err)
	}
	first.Continuation = "tok-b"
	first.UpdatedAt = time.Now().Add(time.Minute)
	if err := UpsertSession(ctx, dbx, first); err != nil {
		t.Fatalf("upsert update: %v", err)
	}

	got, err := GetSession(ctx, dbx, "vid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Continuation != "tok-b" || got.ChannelID != "UC1" {
		t.Errorf("got %+v, want updated continuation tok-b", got)
	}

	list, err := ListSessions(ctx, dbx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].StreamID != "vid-1" {
		t.Errorf("list = %+v, want vid-1 first", list)
	}

	if _, err := GetSession(ctx, dbx, "absent"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetSession(absent) err = %v, want sql.ErrNoRows", err)
	}
}
