package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const waitFor = 5 * time.Second

func startWatch(t *testing.T, cfg Config) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(waitFor):
			t.Error("watch did not stop after cancel")
		}
	})
	// Give the watcher time to register the tree.
	time.Sleep(100 * time.Millisecond)
	return cancel, done
}

func TestRun_DebouncesChanges(t *testing.T) {
	root := t.TempDir()
	batches := make(chan []string, 4)
	startWatch(t, Config{
		Root:     root,
		Debounce: 100 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			batches <- changed
			return nil
		},
	})

	for _, name := range []string{"a.js", "b.js"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case got := <-batches:
		joined := strings.Join(got, ",")
		if !strings.Contains(joined, "a.js") || !strings.Contains(joined, "b.js") {
			t.Fatalf("expected both files in one batch, got %v", got)
		}
	case <-time.After(waitFor):
		t.Fatal("OnChange was not called")
	}
}

func TestRun_SkipsIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "node_modules"), 0o700); err != nil {
		t.Fatal(err)
	}
	batches := make(chan []string, 4)
	startWatch(t, Config{
		Root:     root,
		Debounce: 50 * time.Millisecond,
		SkipDir:  func(name string) bool { return name == "node_modules" },
		OnChange: func(_ context.Context, changed []string) error {
			batches <- changed
			return nil
		},
	})

	if err := os.WriteFile(filepath.Join(root, "node_modules", "dep.js"), []byte("x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "app.js"), []byte("x\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-batches:
		for _, p := range got {
			if strings.Contains(p, "dep.js") {
				t.Fatalf("change inside skipped directory reported: %v", got)
			}
		}
	case <-time.After(waitFor):
		t.Fatal("OnChange was not called")
	}
}

func TestRun_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	batches := make(chan []string, 8)
	startWatch(t, Config{
		Root:     root,
		Debounce: 100 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			batches <- changed
			return nil
		},
	})

	sub := filepath.Join(root, "src")
	if err := os.Mkdir(sub, 0o700); err != nil {
		t.Fatal(err)
	}
	select {
	case <-batches:
	case <-time.After(waitFor):
		t.Fatal("directory creation not reported")
	}

	if err := os.WriteFile(filepath.Join(sub, "new.js"), []byte("x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-batches:
		if !strings.Contains(strings.Join(got, ","), "new.js") {
			t.Fatalf("expected new.js, got %v", got)
		}
	case <-time.After(waitFor):
		t.Fatal("write inside new directory not reported")
	}
}

func TestRun_Validation(t *testing.T) {
	noop := func(context.Context, []string) error { return nil }
	file := filepath.Join(t.TempDir(), "a.js")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"missing callback", Config{Root: t.TempDir()}, "OnChange is required"},
		{"missing root", Config{Root: filepath.Join(t.TempDir(), "nope"), OnChange: noop}, "stat watch root"},
		{"file root", Config{Root: file, OnChange: noop}, "must be a directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Run(context.Background(), tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Run() error = %v, want %q", err, tt.want)
			}
		})
	}
}
