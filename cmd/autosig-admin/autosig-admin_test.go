package main

import (
	"path/filepath"
	"strings"
	"testing"

	"code.autosig.org/golang/internal/config"
	"code.autosig.org/golang/internal/observability"
	"code.autosig.org/golang/pkg/keypair"
)

func TestRunCommands(t *testing.T) {
	ctx, _ := observability.NewTestContext(t)
	cfg := config.Default()
	cfg.Store = config.StoreConfig{Driver: config.DriverSQLite, Dsn: filepath.Join(t.TempDir(), "autosig.db")}
	cfg.Keys.Bits = keypair.MinBits

	run := func(command string, yes bool, stdin string, args ...string) (string, error) {
		var out strings.Builder
		cmd := Cmd{
			Config:  cfg,
			Yes:     yes,
			Command: command,
			Args:    args,
			Stdin:   strings.NewReader(stdin),
			Stdout:  &out,
		}
		err := cmd.Run(ctx)
		return out.String(), err
	}

	_, err := run("migrate", false, "")
	if nil != err {
		t.Fatalf("failed migrate, got error %v", err)
	}
	_, err = run("add-student", false, "pw\n", "S001", "Student One", "open-1")
	if nil != err {
		t.Fatalf("failed add-student, got error %v", err)
	}
	_, err = run("add-student", false, "pw\n", "S001", "Student One")
	if nil == err {
		t.Error("duplicate student enrolled")
	}

	out, err := run("stats", false, "")
	if nil != err {
		t.Fatalf("failed stats, got error %v", err)
	}
	if !strings.Contains(out, "student: 1") || !strings.Contains(out, "teacher: 0") {
		t.Errorf("unexpected stats output %q", out)
	}

	_, err = run("rebuild-db", false, "")
	if nil == err {
		t.Error("rebuild-db ran without confirmation")
	}
	_, err = run("rebuild-db", true, "")
	if nil != err {
		t.Fatalf("failed rebuild-db, got error %v", err)
	}
	out, _ = run("stats", false, "")
	if !strings.Contains(out, "student: 0") {
		t.Errorf("accounts kept by rebuild-db, got %q", out)
	}

	_, err = run("frobnicate", false, "")
	if nil == err {
		t.Error("unknown command accepted")
	}
}
