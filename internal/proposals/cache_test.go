package proposals

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("absent session reads as idle", func(t *testing.T) {
		cache := NewMemoryCache()

		state, err := cache.Get(ctx, "unknown")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if state.AwaitingConfirmation || state.Pending != nil {
			t.Errorf("expected idle state, got %+v", state)
		}
	})

	t.Run("put then get", func(t *testing.T) {
		cache := NewMemoryCache()

		want := State{
			AwaitingConfirmation: true,
			Pending: &Proposal{
				Name:     "Road Trip",
				TrackIDs: []string{"t1", "t2"},
				Display: []TrackDisplay{
					{Name: "Song One", Artists: []string{"Artist"}, Found: true},
					{Name: "Song Two", Artists: []string{"Artist"}, Found: true},
				},
			},
		}

		if err := cache.Put(ctx, "sess1", want, time.Hour); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := cache.Get(ctx, "sess1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !got.AwaitingConfirmation || got.Pending == nil {
			t.Fatalf("state not preserved: %+v", got)
		}
		if got.Pending.Name != "Road Trip" || len(got.Pending.TrackIDs) != 2 {
			t.Errorf("proposal not preserved: %+v", got.Pending)
		}
	})

	t.Run("expired entry reads as idle", func(t *testing.T) {
		cache := NewMemoryCache()

		if err := cache.Put(ctx, "sess1", State{AwaitingConfirmation: true, Pending: &Proposal{Name: "Stale"}}, time.Hour); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		cache.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

		state, err := cache.Get(ctx, "sess1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if state.AwaitingConfirmation || state.Pending != nil {
			t.Errorf("expired entry still readable: %+v", state)
		}
	})

	t.Run("put overwrites and resets the deadline", func(t *testing.T) {
		cache := NewMemoryCache()

		cache.Put(ctx, "sess1", State{AwaitingConfirmation: true, Pending: &Proposal{Name: "First"}}, time.Hour)
		cache.Put(ctx, "sess1", State{AwaitingConfirmation: true, Pending: &Proposal{Name: "Second"}}, time.Hour)

		state, _ := cache.Get(ctx, "sess1")
		if state.Pending == nil || state.Pending.Name != "Second" {
			t.Errorf("overwrite failed: %+v", state.Pending)
		}
	})

	t.Run("sessions are independent", func(t *testing.T) {
		cache := NewMemoryCache()

		cache.Put(ctx, "sess1", State{AwaitingConfirmation: true, Pending: &Proposal{Name: "Mine"}}, time.Hour)

		state, _ := cache.Get(ctx, "sess2")
		if state.Pending != nil {
			t.Errorf("cross-session leak: %+v", state.Pending)
		}
	})
}

func TestProposalSummary(t *testing.T) {
	t.Run("numbers tracks and ends with a question", func(t *testing.T) {
		p := &Proposal{
			Name: "Evening",
			Display: []TrackDisplay{
				{Name: "First Song", Artists: []string{"Artist A", "Artist B"}, Found: true},
				{Name: "unfindable query"},
				{Name: "Third Song", Artists: []string{"Artist C"}, Found: true},
			},
		}

		summary := p.Summary()

		for _, want := range []string{
			`"Evening"`,
			"1. First Song by Artist A, Artist B",
			"2. unfindable query (not found)",
			"3. Third Song by Artist C",
			"Should I go ahead and create it?",
		} {
			if !strings.Contains(summary, want) {
				t.Errorf("summary missing %q:\n%s", want, summary)
			}
		}
	})
}
