package claims

import (
	"sync"
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/google/uuid"
)

func TestClaimIsIdempotent(t *testing.T) {
	m := NewManager()
	a, b := uuid.New(), uuid.New()
	pos := cube.Pos{1, 2, 3}

	if !m.Claim(pos, a) {
		t.Fatalf("expected first claim to succeed")
	}
	if !m.IsClaimed(pos) {
		t.Fatalf("expected pos to be claimed immediately")
	}
	if !m.Claim(pos, a) {
		t.Fatalf("re-claim by the same holder should be a no-op success")
	}
	if m.Claim(pos, b) {
		t.Fatalf("another holder must not take over a claim")
	}
	if h, _ := m.Holder(pos); h != a {
		t.Fatalf("expected holder to stay %v, got %v", a, h)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 claim, got %d", m.Len())
	}
}

func TestReleaseOnlyByHolder(t *testing.T) {
	m := NewManager()
	a, b := uuid.New(), uuid.New()
	pos := cube.Pos{0, 0, 0}
	m.Claim(pos, a)
	if m.Release(pos, b) {
		t.Fatalf("release by a stranger must fail")
	}
	if !m.Release(pos, a) || m.IsClaimed(pos) {
		t.Fatalf("release by owner should clear the claim")
	}
}

func TestReleaseHolder(t *testing.T) {
	m := NewManager()
	a, b := uuid.New(), uuid.New()
	m.Claim(cube.Pos{0, 0, 0}, a)
	m.Claim(cube.Pos{1, 0, 0}, a)
	m.Claim(cube.Pos{2, 0, 0}, b)
	if n := m.ReleaseHolder(a); n != 2 {
		t.Fatalf("expected 2 released, got %d", n)
	}
	if !m.IsClaimed(cube.Pos{2, 0, 0}) {
		t.Fatalf("other holder's claim must survive")
	}
}

func TestSnapshotRestore(t *testing.T) {
	m := NewManager()
	a := uuid.New()
	m.Claim(cube.Pos{3, 0, 0}, a)
	m.Claim(cube.Pos{1, 0, 0}, a)
	snap := m.Snapshot()
	if len(snap) != 2 || snap[0].Pos != (cube.Pos{1, 0, 0}) {
		t.Fatalf("expected sorted snapshot, got %v", snap)
	}
	other := NewManager()
	other.Restore(snap)
	if !other.IsClaimed(cube.Pos{3, 0, 0}) || other.Len() != 2 {
		t.Fatalf("restore lost claims")
	}
}

func TestConcurrentClaimsSingleWinner(t *testing.T) {
	m := NewManager()
	pos := cube.Pos{4, 4, 4}
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Claim(pos, uuid.New()) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestRegistryPerWorld(t *testing.T) {
	r := NewRegistry()
	if r.For("w1") != r.For("w1") {
		t.Fatalf("expected a singleton per world")
	}
	if r.For("w1") == r.For("w2") {
		t.Fatalf("worlds must not share managers")
	}
	r.For("w1").Claim(cube.Pos{}, uuid.New())
	r.Drop("w1")
	if r.For("w1").Len() != 0 {
		t.Fatalf("expected a fresh manager after drop")
	}
}

func TestForWorldSharedUntilDropped(t *testing.T) {
	a := ForWorld("claims-test")
	if ForWorld("claims-test") != a {
		t.Fatalf("expected the same manager per world")
	}
	a.Claim(cube.Pos{}, uuid.New())
	DropWorld("claims-test")
	b := ForWorld("claims-test")
	if b == a || b.Len() != 0 {
		t.Fatalf("expected a fresh manager after drop")
	}
	DropWorld("claims-test")
}
