// SPDX-License-Identifier: MIT

package lock

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTemp(t *testing.T) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fnq100.1")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestExclusiveExcludesShared(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fnq100.1")
	holder, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()
	if err := LockExclusive(holder); err != nil {
		t.Fatalf("LockExclusive: %v", err)
	}

	prober, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer prober.Close()

	ok, err := TryLockShared(prober)
	if err != nil {
		t.Fatalf("TryLockShared: %v", err)
	}
	if ok {
		t.Fatal("expected TryLockShared to fail while exclusive lock is held")
	}

	if err := Unlock(holder); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	ok, err = TryLockShared(prober)
	if err != nil {
		t.Fatalf("TryLockShared after release: %v", err)
	}
	if !ok {
		t.Fatal("expected TryLockShared to succeed after release")
	}
	_ = Unlock(prober)
}

func TestSharedLocksDoNotExcludeEachOther(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fnq100.1")
	a, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := LockShared(a); err != nil {
		t.Fatalf("LockShared a: %v", err)
	}
	ok, err := TryLockShared(b)
	if err != nil {
		t.Fatalf("TryLockShared b: %v", err)
	}
	if !ok {
		t.Fatal("expected second shared lock to succeed")
	}
	_ = Unlock(a)
	_ = Unlock(b)
}

func TestWaitUntilUnlockedReturnsImmediatelyWhenFree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fnq100.1")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- WaitUntilUnlocked(path) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitUntilUnlocked: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitUntilUnlocked blocked on an unlocked file")
	}
}

func TestWaitUntilUnlockedBlocksUntilReleased(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fnq100.1")
	holder, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()
	if err := LockExclusive(holder); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	unblockedAt := make(chan time.Time, 1)
	go func() {
		defer wg.Done()
		_ = WaitUntilUnlocked(path)
		unblockedAt <- time.Now()
	}()

	time.Sleep(50 * time.Millisecond)
	releaseAt := time.Now()
	if err := Unlock(holder); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	got := <-unblockedAt
	if got.Before(releaseAt) {
		t.Fatal("WaitUntilUnlocked returned before the lock was released")
	}
}

func TestWaitUntilUnlockedMissingFileIsNotError(t *testing.T) {
	if err := WaitUntilUnlocked(filepath.Join(t.TempDir(), "fnq100.1")); err != nil {
		t.Fatalf("expected nil error for missing file, got %v", err)
	}
}

func TestUnlockWithoutLockIsHarmless(t *testing.T) {
	f := openTemp(t)
	if err := Unlock(f); err != nil {
		t.Fatalf("Unlock on never-locked file: %v", err)
	}
}

func TestTryLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fnq100.1")
	a, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	ok, err := TryLockExclusive(a)
	if err != nil || !ok {
		t.Fatalf("first TryLockExclusive: ok=%v err=%v", ok, err)
	}
	ok, err = TryLockExclusive(b)
	if err != nil {
		t.Fatalf("second TryLockExclusive: %v", err)
	}
	if ok {
		t.Fatal("second TryLockExclusive should have failed")
	}
}
