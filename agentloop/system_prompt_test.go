package agentloop

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBuildSystemPromptSubmitEnabled(t *testing.T) {
	dir := t.TempDir()
	prompt, agents, err := BuildSystemPrompt(dir, PromptConfig{
		MaxSteps:      12,
		TimeLimit:     90 * time.Second,
		SubmitEnabled: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agents != "" {
		t.Errorf("expected no agents instructions, got %q", agents)
	}

	for _, want := range []string{
		"You are a CLI agent.",
		"Use at most one tool call per step.",
		"call submit with a concise final answer",
		"- cwd: " + dir,
		"- max_steps: 12",
		"- time_limit_sec: 90",
		"- network_access: enabled",
		"- sandbox: none",
		"- shell_command(command, workdir?, timeout_ms?, max_output_chars?)",
		"- apply_patch(patch)",
		"- submit(answer)",
		"Pagination is 1-indexed",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "web_search") {
		t.Error("web tools should not be listed when disabled")
	}
}

func TestBuildSystemPromptNoSubmit(t *testing.T) {
	dir := t.TempDir()
	prompt, _, err := BuildSystemPrompt(dir, PromptConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prompt, "respond with a concise final answer") {
		t.Error("expected the no-submit rule")
	}
	if strings.Contains(prompt, "- submit(answer)") {
		t.Error("submit should not be listed when disabled")
	}
	if !strings.Contains(prompt, "- max_steps: unset") || !strings.Contains(prompt, "- time_limit_sec: unset") {
		t.Error("expected unset limits")
	}
}

func TestBuildSystemPromptWebTools(t *testing.T) {
	prompt, _, err := BuildSystemPrompt(t.TempDir(), PromptConfig{WebEnabled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"- web_search(query, max_results?)",
		"- web_open(url, offset?, limit?)",
		"- web_find(url, pattern, max_results?, context_lines?)",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestLoadAgentsInstructionsChain(t *testing.T) {
	root := t.TempDir()
	child := filepath.Join(root, "project", "src")
	if err := os.MkdirAll(child, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "AGENTS.md"), []byte("root rules"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "project", "AGENTS.md"), []byte("project rules"), 0o644); err != nil {
		t.Fatal(err)
	}

	prompt, agents, err := BuildSystemPrompt(child, PromptConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Closest directory first.
	projIdx := strings.Index(agents, "project rules")
	rootIdx := strings.Index(agents, "root rules")
	if projIdx < 0 || rootIdx < 0 {
		t.Fatalf("expected both instruction files, got %q", agents)
	}
	if projIdx > rootIdx {
		t.Error("expected closest AGENTS.md first")
	}
	if !strings.Contains(agents, "\n\n") {
		t.Error("expected blank-line join")
	}
	if !strings.HasSuffix(prompt, agents) {
		t.Error("expected instructions appended to the prompt")
	}
}
