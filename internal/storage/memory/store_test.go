package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/yndnr/authmesh-go/internal/core/service"
	"github.com/yndnr/authmesh-go/internal/storage/storagetest"
)

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) service.Store {
		return New()
	})
}

func TestStore_ViewRejectsWrites(t *testing.T) {
	store := New()
	s := storagetest.NewSession(t, "u1", 0)

	err := store.View(context.Background(), func(tx service.Tx) error {
		return tx.Sessions().Create(context.Background(), s)
	})
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("Create in View error = %v, want ErrReadOnly", err)
	}
	if store.SessionCount() != 0 {
		t.Fatalf("SessionCount() = %d, want 0", store.SessionCount())
	}
}

func TestStore_CanceledContext(t *testing.T) {
	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.Update(ctx, func(service.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Update error = %v, want context.Canceled", err)
	}
	if called {
		t.Fatal("transaction function ran with a canceled context")
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := New()
	ctx := context.Background()
	s := storagetest.NewSession(t, "u1", 0)

	err := store.Update(ctx, func(tx service.Tx) error {
		return tx.Sessions().Create(ctx, s)
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	s.Restricted = true // mutate caller copy

	err = store.View(ctx, func(tx service.Tx) error {
		got, err := tx.Sessions().GetByTokenHash(ctx, s.TokenHash)
		if err != nil {
			return err
		}
		if got.Restricted {
			t.Error("store shares memory with caller")
		}
		got.UserAgent = "changed"
		again, _ := tx.Sessions().GetByTokenHash(ctx, s.TokenHash)
		if again.UserAgent == "changed" {
			t.Error("store shares memory with reader")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestStore_RollbackRestoresUserIndex(t *testing.T) {
	store := New()
	ctx := context.Background()
	kept := storagetest.NewSession(t, "u1", 0)
	if err := store.Update(ctx, func(tx service.Tx) error {
		return tx.Sessions().Create(ctx, kept)
	}); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := store.Update(ctx, func(tx service.Tx) error {
		if err := tx.Sessions().Create(ctx, storagetest.NewSession(t, "u1", 0)); err != nil {
			return err
		}
		if err := tx.Sessions().Create(ctx, storagetest.NewSession(t, "u2", 0)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v", err)
	}

	if store.SessionCount() != 1 || store.UserCount() != 1 {
		t.Errorf("SessionCount = %d, UserCount = %d; want 1, 1", store.SessionCount(), store.UserCount())
	}
	err = store.View(ctx, func(tx service.Tx) error {
		list, err := tx.Sessions().ListByUserID(ctx, "u1")
		if err != nil {
			return err
		}
		if len(list) != 1 || list[0].ID != kept.ID {
			t.Errorf("ListByUserID(u1) = %d sessions", len(list))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStore_RollbackOnPanic(t *testing.T) {
	store := New()
	ctx := context.Background()
	s := storagetest.NewSession(t, "u1", 0)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("Update did not re-panic")
			}
		}()
		_ = store.Update(ctx, func(tx service.Tx) error {
			if err := tx.Sessions().Create(ctx, s); err != nil {
				return err
			}
			panic("handler bug")
		})
	}()

	if store.SessionCount() != 0 {
		t.Fatalf("SessionCount() = %d after panic, want 0", store.SessionCount())
	}

	// The write lock must have been released.
	if err := store.Update(ctx, func(tx service.Tx) error {
		return tx.Sessions().Create(ctx, s)
	}); err != nil {
		t.Fatalf("Update after panic: %v", err)
	}
}
