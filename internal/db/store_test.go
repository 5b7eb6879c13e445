package db

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/benedict2310/tally/internal/eventstore"
)

func openTestStore(t *testing.T, path string, lockTimeout time.Duration) *Store {
	t.Helper()
	s, err := OpenStore(context.Background(), DefaultOptions(path), StoreOptions{LockTimeout: lockTimeout})
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func appendNext(ctx context.Context, s *Store, buttonID int, day string) (int, error) {
	var seq int
	err := s.Exclusive(ctx, func(ctx context.Context, tx eventstore.Tx) error {
		n, err := tx.CountMatching(ctx, buttonID, day)
		if err != nil {
			return err
		}
		at, _ := time.Parse(eventstore.DayLayout, day)
		e, err := tx.Append(ctx, eventstore.Event{ButtonID: buttonID, Seq: n + 1, Day: day, OccurredAt: at.Add(12 * time.Hour)})
		if err != nil {
			return err
		}
		seq = e.Seq
		return nil
	})
	return seq, err
}

func assertGapFree(t *testing.T, seqs []int) {
	t.Helper()
	sort.Ints(seqs)
	for i, v := range seqs {
		if v != i+1 {
			t.Fatalf("sequence not gap-free: %v", seqs)
		}
	}
}

func TestStoreExclusiveGapFreeAcrossStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	first := openTestStore(t, path, 10*time.Second)
	second := openTestStore(t, path, 10*time.Second)

	const perStore = 15
	var (
		mu   sync.Mutex
		seqs []int
		wg   sync.WaitGroup
	)
	errs := make(chan error, 2*perStore)
	for _, s := range []*Store{first, second} {
		for i := 0; i < perStore; i++ {
			wg.Add(1)
			go func(s *Store) {
				defer wg.Done()
				seq, err := appendNext(context.Background(), s, 1, "2024-03-05")
				if err != nil {
					errs <- err
					return
				}
				mu.Lock()
				seqs = append(seqs, seq)
				mu.Unlock()
			}(s)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("appendNext() error = %v", err)
	}
	if len(seqs) != 2*perStore {
		t.Fatalf("expected %d sequences, got %d", 2*perStore, len(seqs))
	}
	assertGapFree(t, seqs)
}

func TestStoreCountMatchingIncludesLegacyRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	s := openTestStore(t, path, time.Second)
	ctx := context.Background()

	legacy := []eventstore.Record{
		{ButtonID: 1, Seq: 1, Timestamp: "2024-03-05T14:22:00+00:00", DateDisplay: "05/03/2024", Time: "14:22"},
		{ButtonID: 1, Seq: 2, Date: "2024-03-05", Time: "15:00"},
		{ButtonID: 2, Seq: 1, Timestamp: "2024-03-05T09:00:00+00:00"},
		{ButtonID: 1, Seq: 1, DateDisplay: "06/03/2024"},
	}
	n, err := eventstore.Import(ctx, s, legacy)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if n != len(legacy) {
		t.Fatalf("expected %d imported, got %d", len(legacy), n)
	}

	seq, err := appendNext(ctx, s, 1, "2024-03-05")
	if err != nil {
		t.Fatalf("appendNext() error = %v", err)
	}
	if seq != 3 {
		t.Fatalf("expected seq 3 after two legacy rows, got %d", seq)
	}

	rows, err := s.Aggregate(ctx, eventstore.Scope{Kind: eventstore.ScopeHours, Day: "2024-03-05"})
	if err != nil {
		t.Fatalf("Aggregate(hours) error = %v", err)
	}
	want := map[int]int{9: 1, 12: 1, 14: 1, 15: 1}
	if len(rows) != len(want) {
		t.Fatalf("unexpected hour rows %#v", rows)
	}
	for _, r := range rows {
		if want[r.Hour] != r.Count {
			t.Fatalf("unexpected hour rows %#v", rows)
		}
	}

	total, err := s.Aggregate(ctx, eventstore.Scope{Kind: eventstore.ScopeAllTime})
	if err != nil {
		t.Fatalf("Aggregate(all-time) error = %v", err)
	}
	if total[0].Count != 5 {
		t.Fatalf("expected 5 clicks all time, got %d", total[0].Count)
	}
	today, err := s.Aggregate(ctx, eventstore.Scope{Kind: eventstore.ScopeToday, Day: "2024-03-05"})
	if err != nil {
		t.Fatalf("Aggregate(today) error = %v", err)
	}
	if today[0].Count != 4 {
		t.Fatalf("expected 4 clicks on 2024-03-05, got %d", today[0].Count)
	}
}

func TestStoreAbortedSectionLeavesNoTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	s := openTestStore(t, path, time.Second)
	ctx := context.Background()

	injected := errors.New("injected failure")
	err := s.Exclusive(ctx, func(ctx context.Context, tx eventstore.Tx) error {
		if _, err := tx.Append(ctx, eventstore.Event{ButtonID: 1, Seq: 1, Day: "2024-03-05", OccurredAt: time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)}); err != nil {
			return err
		}
		return injected
	})
	if !errors.Is(err, injected) {
		t.Fatalf("expected injected error, got %v", err)
	}

	seq, err := appendNext(ctx, s, 1, "2024-03-05")
	if err != nil {
		t.Fatalf("appendNext() error = %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected seq 1 after aborted write, got %d", seq)
	}
}

func TestStoreExclusiveTimeoutInProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	s := openTestStore(t, path, 100*time.Millisecond)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Exclusive(context.Background(), func(context.Context, eventstore.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := s.Exclusive(context.Background(), func(context.Context, eventstore.Tx) error {
		t.Errorf("section entered while held")
		return nil
	})
	close(release)
	if !eventstore.IsTimeout(err) {
		t.Fatalf("expected timeout storage error, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("holder Exclusive() error = %v", err)
	}
}

func TestStoreExclusiveTimeoutAcrossConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	holder := openTestStore(t, path, time.Second)
	waiter := openTestStore(t, path, 150*time.Millisecond)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- holder.Exclusive(context.Background(), func(context.Context, eventstore.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	start := time.Now()
	_, err := appendNext(context.Background(), waiter, 1, "2024-03-05")
	elapsed := time.Since(start)
	close(release)
	if !eventstore.IsTimeout(err) {
		t.Fatalf("expected timeout storage error, got %v", err)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("lock wait not bounded: %s", elapsed)
	}
	if err := <-done; err != nil {
		t.Fatalf("holder Exclusive() error = %v", err)
	}
}

func TestStoreButtons(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	s := openTestStore(t, path, time.Second)
	ctx := context.Background()

	if err := s.SeedButtons(ctx, []int{1, 2, 3, 4}); err != nil {
		t.Fatalf("SeedButtons() error = %v", err)
	}
	if err := s.SetButtonLabel(ctx, 2, "Window"); err != nil {
		t.Fatalf("SetButtonLabel() error = %v", err)
	}
	label, err := s.ButtonLabel(ctx, 2)
	if err != nil {
		t.Fatalf("ButtonLabel() error = %v", err)
	}
	if label != "Window" {
		t.Fatalf("unexpected label %q", label)
	}
	if _, err := s.ButtonLabel(ctx, 9); !errors.Is(err, eventstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetButtonIcon(ctx, 9, nil); !errors.Is(err, eventstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for icon on missing button, got %v", err)
	}

	ref := "sha256:abc"
	if err := s.SetButtonIcon(ctx, 1, &ref); err != nil {
		t.Fatalf("SetButtonIcon() error = %v", err)
	}
	buttons, err := s.ListButtons(ctx)
	if err != nil {
		t.Fatalf("ListButtons() error = %v", err)
	}
	if len(buttons) != 4 || buttons[0].IconRef == nil || *buttons[0].IconRef != ref {
		t.Fatalf("unexpected buttons %#v", buttons)
	}
}
