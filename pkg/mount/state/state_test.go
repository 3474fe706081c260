package state

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func openTestDir(t *testing.T) *Dir {
	t.Helper()
	d, err := Open(t.TempDir() + "/session")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return d
}

func TestAliveFlag(t *testing.T) {
	d := openTestDir(t)

	if d.Alive() {
		t.Fatal("fresh dir reports alive")
	}
	if err := d.SetAlive(); err != nil {
		t.Fatalf("SetAlive: %v", err)
	}
	if !d.Alive() {
		t.Fatal("alive flag not visible after SetAlive")
	}
	if err := d.ClearAlive(); err != nil {
		t.Fatalf("ClearAlive: %v", err)
	}
	if d.Alive() {
		t.Fatal("alive flag still visible after ClearAlive")
	}

	// Clearing twice must be safe.
	if err := d.ClearAlive(); err != nil {
		t.Fatalf("second ClearAlive: %v", err)
	}
}

func TestAwaitReady(t *testing.T) {
	d := openTestDir(t)

	// Already-ready returns immediately.
	if err := d.SignalReady(); err != nil {
		t.Fatalf("SignalReady: %v", err)
	}
	if err := d.AwaitReady(context.Background(), 50*time.Millisecond); err != nil {
		t.Fatalf("AwaitReady on ready dir: %v", err)
	}

	// Signal raised concurrently is observed.
	d2 := openTestDir(t)
	go func() {
		time.Sleep(150 * time.Millisecond)
		_ = d2.SignalReady()
	}()
	start := time.Now()
	if err := d2.AwaitReady(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("AwaitReady: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("AwaitReady took too long to observe the flag")
	}
}

func TestAwaitReadyTimeout(t *testing.T) {
	d := openTestDir(t)

	start := time.Now()
	err := d.AwaitReady(context.Background(), 300*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("wait was not bounded: %v", elapsed)
	}
}

func TestAwaitReadyContextCancel(t *testing.T) {
	d := openTestDir(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	err := d.AwaitReady(ctx, 10*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDoneFlag(t *testing.T) {
	d := openTestDir(t)

	if done, _ := d.Done(); done {
		t.Fatal("fresh dir reports done")
	}

	if err := d.SignalDone(true); err != nil {
		t.Fatalf("SignalDone: %v", err)
	}
	done, graceful := d.Done()
	if !done || !graceful {
		t.Fatalf("Done() = %v, %v; want true, true", done, graceful)
	}

	if err := d.SignalDone(false); err != nil {
		t.Fatalf("SignalDone: %v", err)
	}
	done, graceful = d.Done()
	if !done || graceful {
		t.Fatalf("Done() = %v, %v; want true, false", done, graceful)
	}
}

func TestAwaitDone(t *testing.T) {
	d := openTestDir(t)

	go func() {
		time.Sleep(150 * time.Millisecond)
		_ = d.SignalDone(true)
	}()

	graceful, err := d.AwaitDone(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("AwaitDone: %v", err)
	}
	if !graceful {
		t.Error("expected graceful exit")
	}

	d2 := openTestDir(t)
	if _, err := d2.AwaitDone(context.Background(), 200*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestReset(t *testing.T) {
	d := openTestDir(t)

	_ = d.SetAlive()
	_ = d.SignalReady()
	_ = d.SignalDone(true)

	if err := d.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if d.Ready() {
		t.Error("ready flag survived Reset")
	}
	if done, _ := d.Done(); done {
		t.Error("done flag survived Reset")
	}
	if !d.Alive() {
		t.Error("Reset must not touch the alive flag")
	}
}

func TestPIDFiles(t *testing.T) {
	d := openTestDir(t)

	if _, ok := d.ReadPID(PIDEngine); ok {
		t.Fatal("fresh dir has a pid")
	}

	if err := d.WritePID(PIDEngine, 12345); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	pid, ok := d.ReadPID(PIDEngine)
	if !ok || pid != 12345 {
		t.Fatalf("ReadPID = %d, %v", pid, ok)
	}

	// Our own process is certainly alive.
	if err := d.WritePID(PIDSupervisor, os.Getpid()); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	pid, ok = d.LivePID(PIDSupervisor)
	if !ok || pid != os.Getpid() {
		t.Fatalf("LivePID = %d, %v", pid, ok)
	}

	// A PID that cannot exist is stale.
	if err := d.WritePID(PIDEngine, 1<<22-1); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	if _, ok := d.LivePID(PIDEngine); ok {
		t.Error("stale pid reported live")
	}

	d.RemovePID(PIDSupervisor)
	if _, ok := d.ReadPID(PIDSupervisor); ok {
		t.Error("pid survived RemovePID")
	}
}

func TestSpecRoundTrip(t *testing.T) {
	d := openTestDir(t)

	spec := &Spec{
		SessionID:        "f2a3",
		Local:            "/mnt/data",
		RemoteName:       "tether",
		RemotePath:       "backup",
		ConfigPath:       "/tmp/f2a3-tether.conf",
		RCAddr:           "127.0.0.1:5572",
		RefreshInterval:  5 * time.Second,
		Timeout:          30 * time.Second,
		Verbose:          true,
		MissedHeartbeats: 3,
		RestartLimit:     1,
		MountRetries:     5,
		MountedAt:        time.Now().UTC().Truncate(time.Second),
	}

	if err := d.WriteSpec(spec); err != nil {
		t.Fatalf("WriteSpec: %v", err)
	}

	got, err := d.ReadSpec()
	if err != nil {
		t.Fatalf("ReadSpec: %v", err)
	}

	if got.SessionID != spec.SessionID || got.Local != spec.Local ||
		got.RefreshInterval != spec.RefreshInterval || got.MissedHeartbeats != spec.MissedHeartbeats {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !got.MountedAt.Equal(spec.MountedAt) {
		t.Errorf("MountedAt = %v, want %v", got.MountedAt, spec.MountedAt)
	}
}

func TestReadSpecMissing(t *testing.T) {
	d := openTestDir(t)
	if _, err := d.ReadSpec(); err == nil {
		t.Fatal("expected error for missing spec")
	}
}
