package treedb

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

type record struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	mr := miniredis.RunT(t)
	redisStore, err := NewRedis("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedis failed: %v", err)
	}
	t.Cleanup(func() { redisStore.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"redis":  redisStore,
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := record{Text: "hello", Count: 3}
			if err := store.Set(ctx, "posts/abc", in); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			var out record
			if err := store.Get(ctx, "posts/abc", &out); err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if out != in {
				t.Errorf("got %+v, want %+v", out, in)
			}
		})
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var out record
			if err := store.Get(context.Background(), "posts/none", &out); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestUpdateMergesFields(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Set(ctx, "posts/abc", map[string]any{"text": "old", "count": 5}); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if err := store.Update(ctx, "posts/abc", map[string]any{"text": "new"}); err != nil {
				t.Fatalf("Update failed: %v", err)
			}
			var out record
			if err := store.Get(ctx, "posts/abc", &out); err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if out.Text != "new" {
				t.Errorf("expected merged text, got %q", out.Text)
			}
			if out.Count != 5 {
				t.Errorf("expected untouched count 5, got %d", out.Count)
			}
		})
	}
}

func TestUpdateCreatesWhenAbsent(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Update(ctx, "bookmarks/1/k", map[string]any{"status": 1}); err != nil {
				t.Fatalf("Update failed: %v", err)
			}
			var out map[string]any
			if err := store.Get(ctx, "bookmarks/1/k", &out); err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if out["status"] != float64(1) {
				t.Errorf("expected status 1, got %v", out["status"])
			}
		})
	}
}

func TestPushAndChildren(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			k1, err := store.Push(ctx, "messages", record{Text: "a"})
			if err != nil {
				t.Fatalf("Push failed: %v", err)
			}
			k2, err := store.Push(ctx, "messages", record{Text: "b"})
			if err != nil {
				t.Fatalf("Push failed: %v", err)
			}
			if k1 == k2 {
				t.Fatal("push keys must be unique")
			}
			children, err := store.Children(ctx, "messages")
			if err != nil {
				t.Fatalf("Children failed: %v", err)
			}
			if len(children) != 2 {
				t.Fatalf("expected 2 children, got %d", len(children))
			}
			var first record
			if err := json.Unmarshal(children[k1], &first); err != nil {
				t.Fatalf("unmarshal child: %v", err)
			}
			if first.Text != "a" {
				t.Errorf("expected text a, got %q", first.Text)
			}
		})
	}
}

func TestBranchChildrenListedWithoutLeaf(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Set(ctx, "chats/1_2/messages/m1", record{Text: "hi"}); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			keys, err := store.ChildKeys(ctx, "chats")
			if err != nil {
				t.Fatalf("ChildKeys failed: %v", err)
			}
			if len(keys) != 1 || keys[0] != "1_2" {
				t.Fatalf("expected [1_2], got %v", keys)
			}
			children, err := store.Children(ctx, "chats")
			if err != nil {
				t.Fatalf("Children failed: %v", err)
			}
			if raw, ok := children["1_2"]; !ok || raw != nil {
				t.Errorf("branch child should be present with nil value, got %v", children)
			}
		})
	}
}

func TestRemoveSubtree(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Set(ctx, "chats/1_2/messages/m1", record{Text: "hi"}); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if err := store.Remove(ctx, "chats/1_2"); err != nil {
				t.Fatalf("Remove failed: %v", err)
			}
			var out record
			if err := store.Get(ctx, "chats/1_2/messages/m1", &out); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected descendant gone, got %v", err)
			}
			keys, err := store.ChildKeys(ctx, "chats")
			if err != nil {
				t.Fatalf("ChildKeys failed: %v", err)
			}
			if len(keys) != 0 {
				t.Errorf("expected no chats left, got %v", keys)
			}
		})
	}
}

func TestRemoveMissingIsNoError(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Remove(context.Background(), "likes/9/9"); err != nil {
				t.Fatalf("Remove of missing path should succeed, got %v", err)
			}
		})
	}
}

func TestExistsAndTouch(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ok, err := store.Exists(ctx, "chats/3_4/messages")
			if err != nil {
				t.Fatalf("Exists failed: %v", err)
			}
			if ok {
				t.Fatal("expected path to not exist yet")
			}
			if err := store.Touch(ctx, "chats/3_4/messages"); err != nil {
				t.Fatalf("Touch failed: %v", err)
			}
			ok, err = store.Exists(ctx, "chats/3_4")
			if err != nil {
				t.Fatalf("Exists failed: %v", err)
			}
			if !ok {
				t.Error("expected touched branch to exist")
			}
		})
	}
}

func TestIncrSequence(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for want := int64(1); want <= 5; want++ {
				got, err := store.Incr(ctx, "user_counter")
				if err != nil {
					t.Fatalf("Incr failed: %v", err)
				}
				if got != want {
					t.Fatalf("expected %d, got %d", want, got)
				}
			}
			var stored int64
			if err := store.Get(ctx, "user_counter", &stored); err != nil {
				t.Fatalf("Get counter failed: %v", err)
			}
			if stored != 5 {
				t.Errorf("expected stored counter 5, got %d", stored)
			}
		})
	}
}

func TestSeedOnlyRaises(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Seed(ctx, "post_counter", 10); err != nil {
				t.Fatalf("Seed failed: %v", err)
			}
			if err := store.Seed(ctx, "post_counter", 4); err != nil {
				t.Fatalf("Seed failed: %v", err)
			}
			next, err := store.Incr(ctx, "post_counter")
			if err != nil {
				t.Fatalf("Incr failed: %v", err)
			}
			if next != 11 {
				t.Errorf("expected 11 after seeding to 10, got %d", next)
			}
		})
	}
}
