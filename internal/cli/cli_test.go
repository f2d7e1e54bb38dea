package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/amaos/internal/config"
	"github.com/me/amaos/internal/store"
	"github.com/me/amaos/pkg/model"
)

func execute(t *testing.T, ctx context.Context, in string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetIn(strings.NewReader(in))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "amaos.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConsoleCommand(t *testing.T) {
	out, err := execute(t, context.Background(), "2\nworker\n3\n4\n7\n", "console", "--boot-delay=0")
	if err != nil {
		t.Fatalf("console: %v", err)
	}
	for _, want := range []string{"AMA OS Booting...", "Started TID: 1 worker", "TID: 1 worker\n", "RAM:     1.9 GiB free of 2.0 GiB"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConsoleJournalThenEvents(t *testing.T) {
	journal := filepath.Join(t.TempDir(), "data", "journal.db")
	cfgPath := writeConfig(t, "journal:\n  path: "+journal+"\nqueue:\n  capacity: 1\n")

	_, err := execute(t, context.Background(), "2\na\n2\nb\n7\n", "--config", cfgPath, "console", "--boot-delay=0")
	if err != nil {
		t.Fatalf("console: %v", err)
	}

	out, err := execute(t, context.Background(), "", "--config", cfgPath, "events")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	for _, want := range []string{"WHEN", "admitted", "rejected", "QUEUE_FULL", "released"} {
		if !strings.Contains(out, want) {
			t.Errorf("events output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, context.Background(), "", "events", "--journal", journal, "--type", "rejected")
	if err != nil {
		t.Fatalf("events --type: %v", err)
	}
	if strings.Contains(out, "admitted") || !strings.Contains(out, "rejected") {
		t.Errorf("type filter not applied:\n%s", out)
	}
}

func TestEventsWithoutJournal(t *testing.T) {
	if _, err := execute(t, context.Background(), "", "events"); err == nil {
		t.Fatal("expected error without a journal")
	}
}

func TestEventsEmpty(t *testing.T) {
	out, err := execute(t, context.Background(), "", "events", "--journal", filepath.Join(t.TempDir(), "j.db"))
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if !strings.Contains(out, "No events.") {
		t.Errorf("output = %q", out)
	}
}

func TestEventsPaging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for i := 0; i < 3; i++ {
		st.Record(context.Background(), model.Event{
			ID:        "evt_" + string(rune('a'+i)),
			Type:      model.EventRotated,
			TaskID:    i + 1,
			TaskName:  "t",
			Kind:      model.KindThread,
			CreatedAt: time.Now().UTC(),
		})
	}
	st.Close()

	out, err := execute(t, context.Background(), "", "events", "--journal", path, "--limit", "2")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if !strings.Contains(out, "(2 of 3 shown)") {
		t.Errorf("output missing paging note:\n%s", out)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := execute(t, ctx, "", "serve", "--addr", "127.0.0.1:0"); err != nil {
		t.Fatalf("serve: %v", err)
	}
}

func TestServeBadAddr(t *testing.T) {
	if _, err := execute(t, context.Background(), "", "serve", "--addr", "not-an-address"); err == nil {
		t.Fatal("expected listen error")
	}
}

func TestRootRejectsBadConfig(t *testing.T) {
	cfgPath := writeConfig(t, "queue:\n  capacity: 0\n")
	if _, err := execute(t, context.Background(), "7\n", "--config", cfgPath, "console", "--boot-delay=0"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRootRejectsBadLogFormat(t *testing.T) {
	if _, err := execute(t, context.Background(), "7\n", "--log-format", "xml", "console"); err == nil {
		t.Fatal("expected log format error")
	}
}

func TestNewSystemWiring(t *testing.T) {
	c := config.Default()
	c.Journal.Path = ":memory:"
	c.Resources.RAM = 300
	sys, err := newSystem(context.Background(), c, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newSystem: %v", err)
	}
	defer sys.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := sys.kernel.Launch(ctx, "t", model.KindThread); err != nil {
			t.Fatalf("Launch %d: %v", i, err)
		}
	}
	if _, err := sys.kernel.Launch(ctx, "t", model.KindThread); err == nil {
		t.Fatal("expected insufficient resources")
	}

	events, total, err := sys.store.ListEvents(ctx, store.ListOptions{})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if total != 4 || events[0].Type != model.EventRejected {
		t.Errorf("journal total=%d first=%+v", total, events[0])
	}

	families, err := sys.metrics.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "amaos_queue_depth" && f.GetMetric()[0].GetGauge().GetValue() == 3 {
			found = true
		}
	}
	if !found {
		t.Error("amaos_queue_depth gauge not reporting 3")
	}
}

func TestTraceFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.json")
	if _, err := execute(t, context.Background(), "2\nworker\n7\n", "--trace", path, "console", "--boot-delay=0"); err != nil {
		t.Fatalf("console: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	for _, want := range []string{"kernel.Launch", "kernel.ShutdownAll"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("trace missing %s", want)
		}
	}
}
