package observe

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mdaverde/fnq-go/internal/fnqerr"
	"github.com/mdaverde/fnq-go/internal/lock"
)

func writeQueueFile(t *testing.T, dir, name string) *os.File {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestTapIdleWhenNoFiles(t *testing.T) {
	dir := t.TempDir()
	running, err := Tap(dir, "")
	if err != nil {
		t.Fatalf("Tap: %v", err)
	}
	if running {
		t.Fatal("expected idle for empty directory")
	}
}

func TestTapRunningWhenLocked(t *testing.T) {
	dir := t.TempDir()
	f := writeQueueFile(t, dir, "fnq100.1")
	if err := lock.LockExclusive(f); err != nil {
		t.Fatal(err)
	}

	running, err := Tap(dir, "")
	if err != nil {
		t.Fatalf("Tap: %v", err)
	}
	if !running {
		t.Fatal("expected running while exclusive lock held")
	}

	_ = lock.Unlock(f)
	running, err = Tap(dir, "")
	if err != nil {
		t.Fatalf("Tap after release: %v", err)
	}
	if running {
		t.Fatal("expected idle after release")
	}
}

func TestTapSingleFile(t *testing.T) {
	dir := t.TempDir()
	a := writeQueueFile(t, dir, "fnq100.1")
	writeQueueFile(t, dir, "fnq200.2")
	if err := lock.LockExclusive(a); err != nil {
		t.Fatal(err)
	}

	running, err := Tap(dir, "fnq200.2")
	if err != nil {
		t.Fatalf("Tap single: %v", err)
	}
	if running {
		t.Fatal("expected fnq200.2 alone to report idle")
	}

	if _, err := Tap(dir, "does-not-exist"); !fnqerr.Is(err, fnqerr.KindFileNotFound) {
		t.Fatalf("expected FileNotFound, got %v", err)
	}
}

func TestBlockReturnsOnceReleased(t *testing.T) {
	dir := t.TempDir()
	f := writeQueueFile(t, dir, "fnq100.1")
	if err := lock.LockExclusive(f); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	blockErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		blockErr <- Block(dir, "")
	}()

	time.Sleep(50 * time.Millisecond)
	_ = lock.Unlock(f)
	wg.Wait()
	if err := <-blockErr; err != nil {
		t.Fatalf("Block: %v", err)
	}
}

func TestLastEmptyQueue(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	err := Last(dir, &buf)
	if !fnqerr.Is(err, fnqerr.KindQueueEmpty) {
		t.Fatalf("expected QueueEmpty, got %v", err)
	}
}

func TestLastCopiesMostRecentFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "fnq100.1"), []byte("old\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fnq200.2"), []byte("new\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Last(dir, &buf); err != nil {
		t.Fatalf("Last: %v", err)
	}
	if buf.String() != "new\n" {
		t.Fatalf("expected most recent file's contents, got %q", buf.String())
	}
}

func TestWatchSkipsAlreadyFinishedFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "fnq100.1"), []byte("done\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var buf bytes.Buffer
	if err := Watch(ctx, dir, &buf, 20*time.Millisecond, nil); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected nothing printed for an already-finished file, got %q", buf.String())
	}
}

func TestWatchFollowsRunningFileUntilLockReleased(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fnq100.1")
	f := writeQueueFile(t, dir, "fnq100.1")
	if _, err := f.WriteString("line1\n"); err != nil {
		t.Fatal(err)
	}
	if err := lock.LockExclusive(f); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var buf bytes.Buffer
	watchDone := make(chan error, 1)
	go func() { watchDone <- Watch(ctx, dir, &buf, 20*time.Millisecond, nil) }()

	time.Sleep(100 * time.Millisecond)
	if _, err := f.WriteString("line2\n"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	_ = lock.Unlock(f)

	select {
	case err := <-watchDone:
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
	case <-time.After(4 * time.Second):
		t.Fatal("Watch did not complete after lock release")
	}

	out := buf.String()
	if !strings.Contains(out, "line1") || !strings.Contains(out, "line2") {
		t.Fatalf("expected both lines in watch output, got %q", out)
	}
	_ = path
}
