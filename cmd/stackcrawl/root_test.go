package main

import (
	"bytes"
	"strings"
	"testing"
)

// TestNewRootCmd tests the root command creation.
func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	t.Run("has correct use and version", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "stackcrawl" {
			t.Errorf("expected use 'stackcrawl', got %q", cmd.Use)
		}
		if cmd.Version == "" {
			t.Error("expected non-empty version")
		}
		if cmd.Short == "" || cmd.Long == "" {
			t.Error("expected short and long descriptions")
		}
	})

	t.Run("has persistent flags", func(t *testing.T) {
		t.Parallel()
		verbose := cmd.PersistentFlags().Lookup("verbose")
		if verbose == nil {
			t.Fatal("expected verbose flag")
		}
		if verbose.Shorthand != "v" || verbose.DefValue != "false" {
			t.Errorf("unexpected verbose flag: -%s default %s", verbose.Shorthand, verbose.DefValue)
		}
		format := cmd.PersistentFlags().Lookup("log-format")
		if format == nil {
			t.Fatal("expected log-format flag")
		}
		if format.DefValue != "text" {
			t.Errorf("expected log-format default 'text', got %q", format.DefValue)
		}
	})

	t.Run("has subcommands", func(t *testing.T) {
		t.Parallel()
		want := map[string]bool{"scan": false, "history": false, "init": false, "version": false}
		for _, sub := range cmd.Commands() {
			if _, ok := want[sub.Name()]; ok {
				want[sub.Name()] = true
			}
		}
		for name, found := range want {
			if !found {
				t.Errorf("expected %s subcommand", name)
			}
		}
	})

	t.Run("silences usage and errors", func(t *testing.T) {
		t.Parallel()
		if !cmd.SilenceUsage || !cmd.SilenceErrors {
			t.Error("expected SilenceUsage and SilenceErrors to be true")
		}
	})
}

// TestNewLogger tests log format selection.
func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, out string)
	}{
		{
			name: "text format",
			args: []string{"-v"},
			check: func(t *testing.T, out string) {
				t.Helper()
				if !strings.Contains(out, "msg=probe") {
					t.Errorf("expected text output, got %q", out)
				}
			},
		},
		{
			name: "json format",
			args: []string{"-v", "--log-format", "json"},
			check: func(t *testing.T, out string) {
				t.Helper()
				if !strings.Contains(out, `"msg":"probe"`) {
					t.Errorf("expected JSON output, got %q", out)
				}
			},
		},
		{
			name:    "unknown format",
			args:    []string{"--log-format", "xml"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := NewRootCmd()
			var stderr bytes.Buffer
			root.SetErr(&stderr)
			if err := root.PersistentFlags().Parse(tt.args); err != nil {
				t.Fatalf("failed to parse flags: %v", err)
			}

			logger, err := newLogger(root)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			logger.Debug("probe", "password", "hunter2")
			tt.check(t, stderr.String())
			if strings.Contains(stderr.String(), "hunter2") {
				t.Error("password leaked into the log")
			}
		})
	}
}
