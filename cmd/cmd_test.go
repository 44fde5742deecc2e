package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/saofleet/reconciler/internal/history"
	redisclient "github.com/saofleet/reconciler/internal/redis"
	"github.com/saofleet/reconciler/internal/reconcile"
	"github.com/saofleet/reconciler/internal/status"
	"github.com/saofleet/reconciler/internal/table"
)

func init() {
	color.NoColor = true
}

func writeCSV(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestReconcileCommand(t *testing.T) {
	dir := t.TempDir()
	services := filepath.Join(dir, "servicios.csv")
	usages := filepath.Join(dir, "usos.csv")
	output := filepath.Join(dir, "pendientes.csv")

	writeCSV(t, services, "Vehículos,Inicio de Servicio,Fin de Servicio\n"+
		"SAO-001,01/09/2024 08:00:00,01/09/2024 18:00:00\n")
	writeCSV(t, usages, "Equipo,Fecha Uso,Ruta\n"+
		"SAO001,01/09/2024 10:00,A\n"+
		"SAO001,01/09/2024 20:00,B\n")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"reconcile", services, usages, "-o", output})
	defer rootCmd.SetArgs(nil)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	got, err := table.ReadFile(output)
	if err != nil {
		t.Fatalf("Failed to read result: %v", err)
	}
	if got.Len() != 1 || got.Cell(0, 2) != "B" {
		t.Errorf("result rows = %v, want only route B", got.Rows)
	}
	if !strings.Contains(out.String(), "Without service") {
		t.Errorf("summary missing from output:\n%s", out.String())
	}
}

func TestReconcileCommandRejectsOutputFormat(t *testing.T) {
	rootCmd.SetArgs([]string{"reconcile", "a.csv", "b.csv", "-o", "result.txt"})
	defer rootCmd.SetArgs(nil)
	defer func() { reconcileOutput = "" }()
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected an error for a .txt output")
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, reconcile.Summary{
		Services:          3,
		Vehicles:          2,
		Usages:            10,
		Matched:           7,
		Unmatched:         3,
		InvertedIntervals: 1,
	}, "out.xlsx")

	out := buf.String()
	for _, want := range []string{"Service intervals", "3 (2 vehicles)", "Without service", "Intervals ending before start", "out.xlsx"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Unreadable usage times") {
		t.Errorf("zero counters should be omitted:\n%s", out)
	}
}

func TestPrintSnapshot(t *testing.T) {
	tests := []struct {
		name string
		snap status.Snapshot
		want string
	}{
		{"progress", status.Progress("j", 50, "normalization complete"), "normalization complete"},
		{"success", status.Success("j", "file:///tmp/j/usos_sin_servicios.xlsx"), "usos_sin_servicios.xlsx"},
		{"failure", status.Failed("j", status.Failure{Type: "IOError", Message: "missing column"}), "IOError: missing column"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printSnapshot(&buf, tt.snap)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("printSnapshot() = %q, want it to contain %q", buf.String(), tt.want)
			}
			if !strings.HasPrefix(buf.String(), string(tt.snap.State)) {
				t.Errorf("printSnapshot() = %q, want state first", buf.String())
			}
		})
	}
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	printHistory(&buf, []history.Record{
		{JobID: "ok-job", Status: "success", Artifact: "file:///r.xlsx", CompletedAt: now, DurationMs: 1500, Usages: 10, Unmatched: 2},
		{JobID: "bad-job", Status: "failed", ErrorType: "IOError", ErrorMessage: "bad file", CompletedAt: now},
	})

	out := buf.String()
	for _, want := range []string{"JOB", "ok-job", "1.5s", "file:///r.xlsx", "bad-job", "IOError: bad file"} {
		if !strings.Contains(out, want) {
			t.Errorf("history missing %q:\n%s", want, out)
		}
	}
}

func TestFollowPrintsUntilTerminal(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redisclient.NewClient(redisclient.ClientConfig{})
	if err := client.Connect(context.Background(), "redis://"+mr.Addr(), ""); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	store := status.NewRedisStore(client)
	ctx := context.Background()
	if err := store.Publish(ctx, status.Pending("job-1")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	go func() {
		for mr.PubSubNumSub("status:v1:job-1")["status:v1:job-1"] == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		store.Publish(ctx, status.Progress("job-1", 25, "inputs loaded"))
		store.Publish(ctx, status.Success("job-1", "file:///tmp/job-1/usos_sin_servicios.xlsx"))
	}()

	var buf bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&buf)
	c.SetContext(context.Background())

	done := make(chan error, 1)
	go func() { done <- follow(c, store, "job-1") }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("follow returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not finish")
	}

	// Snapshots seen by both Get and the subscription are printed once
	if n := strings.Count(buf.String(), "SUCCESS"); n != 1 {
		t.Errorf("SUCCESS printed %d times:\n%s", n, buf.String())
	}
}

func TestFollowReportsFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redisclient.NewClient(redisclient.ClientConfig{})
	if err := client.Connect(context.Background(), "redis://"+mr.Addr(), ""); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	store := status.NewRedisStore(client)
	ctx := context.Background()
	store.Publish(ctx, status.Pending("job-2"))
	store.Publish(ctx, status.Failed("job-2", status.Failure{Type: "IOError", Message: "unreadable"}))

	var buf bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&buf)
	c.SetContext(context.Background())

	if err := follow(c, store, "job-2"); err == nil {
		t.Error("expected an error for a failed job")
	}
	if !strings.Contains(buf.String(), "unreadable") {
		t.Errorf("output missing failure message:\n%s", buf.String())
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(buf.String(), "reconciler version") {
		t.Errorf("unexpected output %q", buf.String())
	}
}
