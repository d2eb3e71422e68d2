package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jiujiugas/gasops/internal/gasdb"
	"github.com/jiujiugas/gasops/internal/journal"
	"github.com/jiujiugas/gasops/internal/servicefile"
)

// run executes the CLI with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		level, format string
		wantErr       bool
		wantJSON      bool
		wantDebug     bool
	}{
		"info text":   {level: "info", format: "text"},
		"debug json":  {level: "debug", format: "json", wantJSON: true, wantDebug: true},
		"upper case":  {level: "WARN", format: ""},
		"bad level":   {level: "loud", format: "text", wantErr: true},
		"bad format":  {level: "info", format: "xml", wantErr: true},
		"empty level": {level: "", format: "text", wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			log, err := newLogger(&buf, tc.level, tc.format)
			if (err != nil) != tc.wantErr {
				t.Fatalf("newLogger() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			log.Debug("d")
			log.Error("e")
			if got := strings.Contains(buf.String(), "msg=d") || strings.Contains(buf.String(), `"msg":"d"`); got != tc.wantDebug {
				t.Errorf("debug logged = %v, want %v\n%s", got, tc.wantDebug, buf.String())
			}
			if got := strings.HasPrefix(buf.String(), "{"); got != tc.wantJSON {
				t.Errorf("json output = %v, want %v\n%s", got, tc.wantJSON, buf.String())
			}
		})
	}

	if _, err := newLogger(io.Discard, "info", "xml"); !errors.Is(err, errLogFormat) {
		t.Errorf("bad format error = %v, want %v", err, errLogFormat)
	}
}

func TestCommandTree(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	var got []string
	for _, c := range root.Commands() {
		for _, sub := range c.Commands() {
			got = append(got, c.Name()+" "+sub.Name())
		}
	}
	want := []string{
		"bot serve",
		"db check", "db fix-groups", "db migrate", "db search", "db seed",
		"mcp serve",
		"supervise init-config", "supervise restart", "supervise start", "supervise status", "supervise stop",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}

	for _, name := range []string{"config", "database-url", "state-dir", "log-level", "log-format"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Errorf("global flag --%s missing", name)
		}
	}
}

func TestSuperviseInitConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), servicefile.DefaultName)

	out, err := run(t, "supervise", "init-config", "--services-file", path)
	if err != nil {
		t.Fatalf("init-config error: %v", err)
	}
	if !strings.Contains(out, "wrote "+path) {
		t.Errorf("output = %q", out)
	}
	f, err := servicefile.Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if diff := cmp.Diff([]string{"linebot", "nextjs", "voice"}, f.Names()); diff != "" {
		t.Errorf("services mismatch (-want +got):\n%s", diff)
	}

	if _, err := run(t, "supervise", "init-config", "--services-file", path); err == nil {
		t.Error("second init-config error = nil, want already exists")
	}
	if _, err := run(t, "supervise", "init-config", "--services-file", path, "--force"); err != nil {
		t.Errorf("init-config --force error: %v", err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("backup missing after --force: %v", err)
	}
}

func TestSuperviseStopNotRunning(t *testing.T) {
	t.Parallel()

	out, err := run(t, "--state-dir", t.TempDir(), "supervise", "stop")
	if err != nil {
		t.Fatalf("stop error: %v", err)
	}
	if !strings.Contains(out, "supervisor is not running") {
		t.Errorf("output = %q", out)
	}
}

func TestSuperviseStatus(t *testing.T) {
	t.Parallel()

	t.Run("empty state dir", func(t *testing.T) {
		t.Parallel()

		out, err := run(t, "--state-dir", t.TempDir(), "supervise", "status")
		if err != nil {
			t.Fatalf("status error: %v", err)
		}
		for _, want := range []string{"supervisor: not running", "no journal yet"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("stale pid and journal", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		// A pid this large cannot belong to a live process.
		if err := os.WriteFile(filepath.Join(dir, "supervisor.pid"), []byte(strconv.Itoa(1<<30)), 0o644); err != nil {
			t.Fatal(err)
		}
		j, err := journal.Open(t.Context(), filepath.Join(dir, journal.FileName), nil)
		if err != nil {
			t.Fatalf("journal.Open() error: %v", err)
		}
		now := time.Now()
		err = j.LogStatus(t.Context(), journal.StatusRecord{
			Service: "linebot", InstanceID: "0123456789abcdef", PID: 42, Port: 8888,
			Status: "running", HealthScore: 97, StartedAt: now, LastCheck: now, RecordedAt: now,
		})
		if err != nil {
			t.Fatalf("LogStatus() error: %v", err)
		}
		if err := j.Close(); err != nil {
			t.Fatal(err)
		}

		out, err := run(t, "--state-dir", dir, "supervise", "status")
		if err != nil {
			t.Fatalf("status error: %v", err)
		}
		for _, want := range []string{"not running (stale pid", "linebot", "01234567", "8888", "running"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})
}

func TestSuperviseStartBadStrategy(t *testing.T) {
	t.Parallel()

	_, err := run(t, "--state-dir", t.TempDir(), "supervise", "start", "--recovery-strategy", "sometimes")
	if err == nil {
		t.Error("start error = nil, want invalid strategy")
	}
}

func TestBadLogFlags(t *testing.T) {
	t.Parallel()

	if _, err := run(t, "--log-format", "xml", "--state-dir", t.TempDir(), "supervise", "status"); !errors.Is(err, errLogFormat) {
		t.Errorf("error = %v, want %v", err, errLogFormat)
	}
}

func TestDBRequiresURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	for _, args := range [][]string{{"db", "check"}, {"db", "migrate"}, {"db", "seed"}, {"db", "search", "瓦斯"}, {"db", "fix-groups"}} {
		if _, err := run(t, args...); !errors.Is(err, gasdb.ErrNoDatabase) {
			t.Errorf("%v error = %v, want %v", args, err, gasdb.ErrNoDatabase)
		}
	}
}

func TestBotServeValidates(t *testing.T) {
	t.Setenv("LINE_CHANNEL_SECRET", "")
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "")
	t.Setenv("GLM_API_KEY", "")
	t.Setenv("GLM_API_KEYS", "")

	_, err := run(t, "bot", "serve")
	if err == nil || !strings.Contains(err.Error(), "LINE_CHANNEL_SECRET") {
		t.Errorf("bot serve error = %v, want missing LINE_CHANNEL_SECRET", err)
	}
}

func TestWriteKnowledge(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	writeKnowledge(&buf, "外洩", []gasdb.KnowledgeEntry{{
		Title: "瓦斯外洩緊急處理", Category: "safety", Priority: 10,
		Keywords: []string{"外洩", "漏氣"}, Content: "關閉開關\n打開門窗",
	}})
	want := "1 entries match \"外洩\"\n\n1. 瓦斯外洩緊急處理 [safety, priority 10]\n   keywords: 外洩, 漏氣\n   關閉開關\n   打開門窗\n"
	if got := buf.String(); got != want {
		t.Errorf("writeKnowledge() = %q, want %q", got, want)
	}

	buf.Reset()
	writeKnowledge(&buf, "x", nil)
	if got := buf.String(); got != "no knowledge matches \"x\"\n" {
		t.Errorf("writeKnowledge(nil) = %q", got)
	}
}

func TestWriteGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := writeGroups(&buf, []gasdb.LineGroup{{GroupID: "C1", Name: "老闆群", Type: "general", Active: true, Permissions: gasdb.FullPermissions}})
	if err != nil {
		t.Fatalf("writeGroups() error: %v", err)
	}
	for _, want := range []string{"GROUP", "C1", "true", strconv.Itoa(len(gasdb.FullPermissions)), "1 groups updated"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}
