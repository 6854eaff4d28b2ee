package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"syndicate/internal/logs"
)

func TestTailReturnsTrailingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syndicate.log")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\nfour\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	lines, offset, err := logs.Tail(path, 2)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(lines) != 2 || lines[0] != "three" || lines[1] != "four" {
		t.Fatalf("lines = %v", lines)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if offset != info.Size() {
		t.Fatalf("offset = %d, want %d", offset, info.Size())
	}
}

func TestTailMissingFile(t *testing.T) {
	lines, offset, err := logs.Tail(filepath.Join(t.TempDir(), "absent.log"), 10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(lines) != 0 || offset != 0 {
		t.Fatalf("lines=%v offset=%d, want empty", lines, offset)
	}
}

func TestFollowStreamsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syndicate.log")
	if err := os.WriteFile(path, []byte("existing\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, offset, err := logs.Tail(path, 0)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, func(line string) { got <- line })
	}()

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := file.WriteString("appended\n"); err != nil {
		t.Fatal(err)
	}
	file.Close()

	select {
	case line := <-got:
		if line != "appended" {
			t.Fatalf("line = %q", line)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for appended line")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Follow returned %v, want context.Canceled", err)
	}
}
