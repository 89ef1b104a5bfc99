package booking

import (
	"context"
	"errors"
	"testing"
)

func TestLedger(t *testing.T) {
	t.Parallel()

	t.Run("runs inverses in reverse order", func(t *testing.T) {
		led := newLedger(testLogger())

		var order []string
		led.add("first", "ev-1", func(ctx context.Context) error {
			order = append(order, "first")
			return nil
		})
		led.add("second", "ev-1", func(ctx context.Context) error {
			order = append(order, "second")
			return nil
		})

		led.run(context.Background(), errors.New("boom"))

		if len(order) != 2 || order[0] != "second" || order[1] != "first" {
			t.Fatalf("expected reverse order, got %v", order)
		}
	})

	t.Run("cleared ledger runs nothing", func(t *testing.T) {
		led := newLedger(testLogger())

		ran := false
		led.add("release", "ev-1", func(ctx context.Context) error {
			ran = true
			return nil
		})
		led.clear()
		led.run(context.Background(), errors.New("boom"))

		if ran {
			t.Fatalf("expected cleared inverse not to run")
		}
	})

	t.Run("failing inverse does not stop the rest", func(t *testing.T) {
		led := newLedger(testLogger())

		ran := false
		led.add("first", "ev-1", func(ctx context.Context) error {
			ran = true
			return nil
		})
		led.add("second", "ev-1", func(ctx context.Context) error {
			return errors.New("undo failed")
		})

		led.run(context.Background(), errors.New("boom"))

		if !ran {
			t.Fatalf("expected remaining inverse to run after a failure")
		}
	})

	t.Run("run empties the ledger", func(t *testing.T) {
		led := newLedger(testLogger())

		count := 0
		led.add("release", "ev-1", func(ctx context.Context) error {
			count++
			return nil
		})

		led.run(context.Background(), errors.New("boom"))
		led.run(context.Background(), errors.New("boom"))

		if count != 1 {
			t.Fatalf("expected inverse to run once, ran %d times", count)
		}
	})
}
