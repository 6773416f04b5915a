package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/desertthunder/trackbridge/internal/models"
	"github.com/desertthunder/trackbridge/internal/shared"
	"github.com/desertthunder/trackbridge/internal/tokens"
)

var _ tokens.KeyValue = (*KVRepository)(nil)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func newJob(session string) *models.TransferJob {
	return models.NewTransferJob(session, models.Spotify, models.SoundCloud, "https://open.spotify.com/playlist/abc")
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(ctx, db, "transfers")
		if err != nil {
			t.Fatalf("failed to get sequence: %v", err)
		}
		if got != want {
			t.Errorf("expected sequence %d, got %d", want, got)
		}
	}

	if _, err := NextSequence(ctx, db, "missing"); err == nil {
		t.Error("expected error for a table without a sequence")
	}
}

func TestKVRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Put and Get", func(t *testing.T) {
		repo := NewKVRepository(setupTestDB(t))

		if err := repo.Put(ctx, "token:spotify:s1", []byte(`{"access_token":"a"}`)); err != nil {
			t.Fatalf("failed to put: %v", err)
		}

		got, err := repo.Get(ctx, "token:spotify:s1")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if string(got) != `{"access_token":"a"}` {
			t.Errorf("unexpected value %s", got)
		}
	})

	t.Run("Put replaces", func(t *testing.T) {
		repo := NewKVRepository(setupTestDB(t))

		for _, v := range []string{"one", "two"} {
			if err := repo.Put(ctx, "k", []byte(v)); err != nil {
				t.Fatalf("failed to put: %v", err)
			}
		}

		got, err := repo.Get(ctx, "k")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if string(got) != "two" {
			t.Errorf("expected latest value, got %s", got)
		}
	})

	t.Run("Missing key", func(t *testing.T) {
		repo := NewKVRepository(setupTestDB(t))

		if _, err := repo.Get(ctx, "missing"); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := NewKVRepository(setupTestDB(t))

		if err := repo.Put(ctx, "k", []byte("v")); err != nil {
			t.Fatalf("failed to put: %v", err)
		}
		if err := repo.Delete(ctx, "k"); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if _, err := repo.Get(ctx, "k"); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("expected deleted key to be missing, got %v", err)
		}
		if err := repo.Delete(ctx, "k"); err != nil {
			t.Errorf("deleting a missing key should succeed: %v", err)
		}
	})

	t.Run("Backs the token store", func(t *testing.T) {
		store := tokens.NewStore(NewKVRepository(setupTestDB(t)), nil)
		rec := models.TokenRecord{SessionID: "s", Platform: models.SoundCloud, AccessToken: "a", RefreshToken: "r"}

		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("failed to save token: %v", err)
		}

		tok, err := store.Token(ctx, "s", models.SoundCloud)
		if err != nil {
			t.Fatalf("failed to get token: %v", err)
		}
		if tok != "a" {
			t.Errorf("expected token a, got %s", tok)
		}
	})
}

func TestTransferRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create", func(t *testing.T) {
		repo := NewTransferRepository(setupTestDB(t))
		job := newJob("s1")

		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("failed to create transfer: %v", err)
		}

		if job.ID() == "" {
			t.Error("transfer ID should be set after creation")
		}
		if job.Sequence() != 1 {
			t.Errorf("expected sequence 1, got %d", job.Sequence())
		}
	})

	t.Run("Get", func(t *testing.T) {
		repo := NewTransferRepository(setupTestDB(t))
		job := newJob("s1")
		job.Start()
		job.SetTracksTotal(10)
		job.SetTracksFound(7)
		job.SetTracksCreated(7)
		job.SetDestinationURL("https://soundcloud.com/me/sets/abc")
		job.Finish(models.StatusCompleted, "Successfully transferred all 7 tracks")

		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("failed to create transfer: %v", err)
		}

		got, err := repo.Get(ctx, job.ID())
		if err != nil {
			t.Fatalf("failed to get transfer: %v", err)
		}

		if got.Status() != models.StatusCompleted {
			t.Errorf("expected status completed, got %s", got.Status())
		}
		if got.TracksTotal() != 10 || got.TracksFound() != 7 || got.TracksCreated() != 7 {
			t.Errorf("unexpected counts %d/%d/%d", got.TracksTotal(), got.TracksFound(), got.TracksCreated())
		}
		if got.DestinationURL() != job.DestinationURL() {
			t.Errorf("expected destination %s, got %s", job.DestinationURL(), got.DestinationURL())
		}
		if got.Percent() != 100 {
			t.Errorf("expected finished transfer at 100%%, got %d", got.Percent())
		}
		if got.Message() != job.Message() {
			t.Errorf("expected message %q, got %q", job.Message(), got.Message())
		}
		if got.StartedAt() == nil || got.CompletedAt() == nil {
			t.Error("expected timestamps to round trip")
		}
	})

	t.Run("Update", func(t *testing.T) {
		repo := NewTransferRepository(setupTestDB(t))
		job := newJob("s1")

		if err := repo.Save(ctx, job); err != nil {
			t.Fatalf("failed to create transfer: %v", err)
		}

		job.Start()
		job.SetTracksTotal(3)
		job.SetErrorMessage("no tracks matched")
		job.Finish(models.StatusFailed, "No matching tracks found")

		if err := repo.Save(ctx, job); err != nil {
			t.Fatalf("failed to update transfer: %v", err)
		}

		got, err := repo.Get(ctx, job.ID())
		if err != nil {
			t.Fatalf("failed to get transfer: %v", err)
		}
		if got.Status() != models.StatusFailed {
			t.Errorf("expected status failed, got %s", got.Status())
		}
		if got.ErrorMessage() != "no tracks matched" {
			t.Errorf("unexpected error message %q", got.ErrorMessage())
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewTransferRepository(setupTestDB(t))

		for _, session := range []string{"s1", "s2", "s1", "s1"} {
			if err := repo.Create(ctx, newJob(session)); err != nil {
				t.Fatalf("failed to create transfer: %v", err)
			}
		}

		all, err := repo.List(ctx, map[string]any{})
		if err != nil {
			t.Fatalf("failed to list transfers: %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("expected 4 transfers, got %d", len(all))
		}
		if all[0].Sequence() < all[1].Sequence() {
			t.Error("expected newest first")
		}

		mine, err := repo.List(ctx, map[string]any{"session_id": "s1", "limit": 2})
		if err != nil {
			t.Fatalf("failed to list transfers: %v", err)
		}
		if len(mine) != 2 {
			t.Fatalf("expected 2 transfers, got %d", len(mine))
		}
		for _, j := range mine {
			if j.SessionID() != "s1" {
				t.Errorf("unexpected session %s", j.SessionID())
			}
		}

		queued, err := repo.List(ctx, map[string]any{"status": string(models.StatusQueued)})
		if err != nil {
			t.Fatalf("failed to list transfers: %v", err)
		}
		if len(queued) != 4 {
			t.Errorf("expected 4 queued transfers, got %d", len(queued))
		}
	})
}
