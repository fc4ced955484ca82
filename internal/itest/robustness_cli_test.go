//go:build integration

package itest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

const cliTimeout = 30 * time.Second

type robustCase struct {
	name            string
	args            func(t *testing.T, repoRoot string) []string
	env             map[string]string
	wantContains    []string
	wantNotContains []string
}

type cliRunResult struct {
	exitCode int
	output   string
}

func TestRobustness_ArgsValidation(t *testing.T) {
	repoRoot := mustRepoRoot(t)
	manifest := filepath.Join(repoRoot, "internal", "itest", "testdata", "clips.json")

	cases := []robustCase{
		{
			name: "no subcommand args",
			args: staticArgs("export"),
			wantContains: []string{
				"accepts 1 arg(s), received 0",
			},
		},
		{
			name: "too many args",
			args: staticArgs("clips", manifest, "extra"),
			wantContains: []string{
				"accepts 1 arg(s), received 2",
			},
		},
		{
			name: "unknown flag",
			args: staticArgs("export", manifest, "--wat"),
			wantContains: []string{
				"unknown flag: --wat",
			},
		},
		{
			name: "at non float",
			args: staticArgs("frame", manifest, "--at", "soon"),
			wantContains: []string{
				`invalid argument "soon" for "--at"`,
			},
		},
		{
			name: "bad log level",
			args: staticArgs("clips", manifest, "--log-level", "loud"),
			wantContains: []string{
				`invalid log level "loud"`,
			},
		},
	}

	runRobustCases(t, repoRoot, cases)
}

func TestRobustness_InvalidInputs(t *testing.T) {
	repoRoot := mustRepoRoot(t)
	testdata := filepath.Join(repoRoot, "internal", "itest", "testdata")

	cases := []robustCase{
		{
			name: "missing manifest",
			args: staticArgs("export", filepath.Join(testdata, "does-not-exist.json")),
			wantContains: []string{
				"config: stat manifest:",
			},
		},
		{
			name: "manifest is not json",
			args: staticArgs("clips", filepath.Join(testdata, "not-media.txt")),
			wantContains: []string{
				"parse manifest",
			},
		},
		{
			name: "unknown clip",
			args: staticArgs("export", filepath.Join(testdata, "clips.json"), "--clip", "nope"),
			wantContains: []string{
				`clip "nope" not found`,
			},
		},
		{
			name: "clip index out of range",
			args: staticArgs("export", filepath.Join(testdata, "clips.json"), "--clip", "9"),
			wantContains: []string{
				"clip index 9 out of range",
			},
		},
		{
			name: "source is non media file",
			args: staticArgs("export", filepath.Join(testdata, "clips.json"), "--source", filepath.Join(testdata, "not-media.txt")),
			wantContains: []string{
				"ffprobe",
			},
		},
		{
			name: "bad config file",
			args: func(t *testing.T, _ string) []string {
				t.Helper()
				cfg := filepath.Join(t.TempDir(), "clipcast.yaml")
				if err := os.WriteFile(cfg, []byte("playback:\n  refresh: sometimes\n"), 0o644); err != nil {
					t.Fatalf("write config fixture: %v", err)
				}
				return []string{"clips", filepath.Join(testdata, "clips.json"), "--config", cfg}
			},
			wantContains: []string{
				"playback.refresh must be",
			},
		},
		{
			name: "ffmpeg override missing",
			args: staticArgs("frame", filepath.Join(testdata, "clips.json")),
			env: map[string]string{
				"CLIPCAST_FFPROBE": "/nonexistent/ffprobe",
				"CLIPCAST_FFMPEG":  "/nonexistent/ffmpeg",
			},
			wantContains: []string{
				"/nonexistent/ffmpeg",
			},
		},
	}

	runRobustCases(t, repoRoot, cases)
}

func runRobustCases(t *testing.T, repoRoot string, cases []robustCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := runCLI(t, repoRoot, tc.args(t, repoRoot), tc.env)
			if res.exitCode == 0 {
				t.Fatalf("expected non-zero exit code, got 0\noutput:\n%s", res.output)
			}
			for _, want := range tc.wantContains {
				if !strings.Contains(res.output, want) {
					t.Fatalf("expected output to contain %q\noutput:\n%s", want, res.output)
				}
			}
			for _, notWant := range tc.wantNotContains {
				if strings.Contains(res.output, notWant) {
					t.Fatalf("expected output to not contain %q\noutput:\n%s", notWant, res.output)
				}
			}
		})
	}
}

func runCLI(t *testing.T, repoRoot string, args []string, env map[string]string) cliRunResult {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	cmdArgs := append([]string{"run", "./cmd/clipcast"}, args...)
	cmd := exec.CommandContext(ctx, "go", cmdArgs...)
	cmd.Dir = repoRoot
	cmd.Env = mergeEnv(
		os.Environ(),
		map[string]string{
			"NO_COLOR": "1",
			"TERM":     "dumb",
		},
		env,
	)

	out, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t.Fatalf("command timed out after %s: go %s", cliTimeout, strings.Join(cmdArgs, " "))
	}

	res := cliRunResult{output: string(out)}
	if err == nil {
		res.exitCode = 0
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.exitCode = exitErr.ExitCode()
		return res
	}

	t.Fatalf("run command: %v\noutput:\n%s", err, string(out))
	return cliRunResult{}
}

func mergeEnv(base []string, overrides ...map[string]string) []string {
	env := make(map[string]string, len(base))
	for _, kv := range base {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		env[kv[:i]] = kv[i+1:]
	}

	for _, set := range overrides {
		for k, v := range set {
			env[k] = v
		}
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}

func mustRepoRoot(t *testing.T) string {
	t.Helper()

	repoRoot, err := findRepoRoot()
	if err != nil {
		t.Fatalf("repo root: %v", err)
	}
	return repoRoot
}

func staticArgs(args ...string) func(t *testing.T, _ string) []string {
	clone := append([]string(nil), args...)
	return func(t *testing.T, _ string) []string {
		t.Helper()
		return append([]string(nil), clone...)
	}
}
