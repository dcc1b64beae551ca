package reputation

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// runStoreContract exercises the behaviour every backend must share. ids are
// prefixed so the suite can run against a shared Redis.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store, prefix string) {
	ctx := context.Background()

	t.Run("empty record", func(t *testing.T) {
		s := newStore(t)
		id := prefix + "nobody"

		banned, err := s.IsBanned(ctx, id)
		if err != nil || banned {
			t.Fatalf("IsBanned = (%v, %v), want (false, nil)", banned, err)
		}
		n, ok, err := s.ViolationCount(ctx, id)
		if err != nil || ok || n != 0 {
			t.Fatalf("ViolationCount = (%d, %v, %v), want (0, false, nil)", n, ok, err)
		}
		k, err := s.Karma(ctx, id)
		if err != nil || k != 0 {
			t.Fatalf("Karma = (%d, %v), want (0, nil)", k, err)
		}
	})

	t.Run("record violation", func(t *testing.T) {
		s := newStore(t)
		id := prefix + "violator"

		for want := 1; want <= 3; want++ {
			got, err := s.RecordViolation(ctx, id)
			if err != nil {
				t.Fatalf("RecordViolation: %v", err)
			}
			if got != want {
				t.Fatalf("RecordViolation #%d = %d", want, got)
			}
		}
		n, ok, err := s.ViolationCount(ctx, id)
		if err != nil || !ok || n != 3 {
			t.Fatalf("ViolationCount = (%d, %v, %v), want (3, true, nil)", n, ok, err)
		}
	})

	t.Run("set banned reports change", func(t *testing.T) {
		s := newStore(t)
		id := prefix + "banme"

		changed, err := s.SetBanned(ctx, id, true)
		if err != nil || !changed {
			t.Fatalf("first ban = (%v, %v), want (true, nil)", changed, err)
		}
		changed, err = s.SetBanned(ctx, id, true)
		if err != nil || changed {
			t.Fatalf("second ban = (%v, %v), want (false, nil)", changed, err)
		}
		banned, _ := s.IsBanned(ctx, id)
		if !banned {
			t.Fatal("IsBanned = false after ban")
		}

		changed, err = s.SetBanned(ctx, id, false)
		if err != nil || !changed {
			t.Fatalf("unban = (%v, %v), want (true, nil)", changed, err)
		}
		changed, _ = s.SetBanned(ctx, id, false)
		if changed {
			t.Fatal("second unban reported a change")
		}
	})

	t.Run("unban without record", func(t *testing.T) {
		s := newStore(t)
		changed, err := s.SetBanned(ctx, prefix+"never-banned", false)
		if err != nil || changed {
			t.Fatalf("SetBanned(false) = (%v, %v), want (false, nil)", changed, err)
		}
	})

	t.Run("init karma is idempotent", func(t *testing.T) {
		s := newStore(t)
		id := prefix + "karma-init"

		if err := s.InitKarma(ctx, id); err != nil {
			t.Fatalf("InitKarma: %v", err)
		}
		if _, err := s.AdjustKarma(ctx, id, Increase, 4); err != nil {
			t.Fatalf("AdjustKarma: %v", err)
		}
		if err := s.InitKarma(ctx, id); err != nil {
			t.Fatalf("InitKarma: %v", err)
		}
		k, _ := s.Karma(ctx, id)
		if k != 4 {
			t.Fatalf("Karma after re-init = %d, want 4", k)
		}
		rec, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !rec.KarmaInitialized || rec.Karma != 4 {
			t.Fatalf("Get = %+v, want initialized karma 4", rec)
		}
	})

	t.Run("adjust karma", func(t *testing.T) {
		s := newStore(t)
		id := prefix + "karma-adjust"

		steps := []struct {
			dir    Direction
			amount int
			want   int
		}{
			{Increase, 2, 2},
			{Decrease, 5, -3},
			{Decrease, 1, -4},
			{Increase, 10, 6},
		}
		for _, st := range steps {
			got, err := s.AdjustKarma(ctx, id, st.dir, st.amount)
			if err != nil {
				t.Fatalf("AdjustKarma(%s, %d): %v", st.dir, st.amount, err)
			}
			if got != st.want {
				t.Fatalf("AdjustKarma(%s, %d) = %d, want %d", st.dir, st.amount, got, st.want)
			}
		}

		if err := s.ResetKarma(ctx, id); err != nil {
			t.Fatalf("ResetKarma: %v", err)
		}
		if k, _ := s.Karma(ctx, id); k != 0 {
			t.Fatalf("Karma after reset = %d", k)
		}
	})

	t.Run("invalid adjustment leaves karma unchanged", func(t *testing.T) {
		s := newStore(t)
		id := prefix + "karma-invalid"

		if _, err := s.AdjustKarma(ctx, id, Increase, 3); err != nil {
			t.Fatalf("AdjustKarma: %v", err)
		}
		if _, err := s.AdjustKarma(ctx, id, Direction("sideways"), 1); !errors.Is(err, ErrInvalidDirection) {
			t.Fatalf("err = %v, want ErrInvalidDirection", err)
		}
		if _, err := s.AdjustKarma(ctx, id, Decrease, 0); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("err = %v, want ErrInvalidAmount", err)
		}
		if k, _ := s.Karma(ctx, id); k != 3 {
			t.Fatalf("Karma = %d, want 3", k)
		}
	})

	t.Run("concurrent updates", func(t *testing.T) {
		s := newStore(t)
		id := prefix + "concurrent"

		const workers = 20
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.RecordViolation(ctx, id)
				s.AdjustKarma(ctx, id, Decrease, 1)
			}()
		}
		wg.Wait()

		n, _, _ := s.ViolationCount(ctx, id)
		if n != workers {
			t.Errorf("ViolationCount = %d, want %d", n, workers)
		}
		k, _ := s.Karma(ctx, id)
		if k != -workers {
			t.Errorf("Karma = %d, want %d", k, -workers)
		}
	})

	t.Run("concurrent bans change once", func(t *testing.T) {
		s := newStore(t)
		id := prefix + "race-ban"

		const workers = 10
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			changes int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				changed, err := s.SetBanned(ctx, id, true)
				if err == nil && changed {
					mu.Lock()
					changes++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if changes != 1 {
			t.Errorf("%d bans reported a change, want exactly 1", changes)
		}
	})
}

func TestSignedDelta(t *testing.T) {
	tests := []struct {
		dir    Direction
		amount int
		want   int
		err    error
	}{
		{Increase, 3, 3, nil},
		{Decrease, 3, -3, nil},
		{Increase, 0, 0, ErrInvalidAmount},
		{Decrease, -2, 0, ErrInvalidAmount},
		{Direction(""), 1, 0, ErrInvalidDirection},
		{Direction("INCREASE"), 1, 0, ErrInvalidDirection},
	}

	for _, tt := range tests {
		got, err := SignedDelta(tt.dir, tt.amount)
		if !errors.Is(err, tt.err) {
			t.Errorf("SignedDelta(%q, %d) err = %v, want %v", tt.dir, tt.amount, err, tt.err)
			continue
		}
		if got != tt.want {
			t.Errorf("SignedDelta(%q, %d) = %d, want %d", tt.dir, tt.amount, got, tt.want)
		}
	}
}
