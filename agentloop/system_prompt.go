package agentloop

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PromptConfig carries the session settings that shape the system prompt.
type PromptConfig struct {
	MaxSteps      int
	TimeLimit     time.Duration
	SubmitEnabled bool
	WebEnabled    bool
}

// BuildSystemPrompt assembles the system prompt for a session rooted at cwd.
// It returns the prompt and, separately, any AGENTS.md instructions found by
// walking from cwd up to the filesystem root (closest directory first).
func BuildSystemPrompt(cwd string, cfg PromptConfig) (string, string, error) {
	var b strings.Builder
	b.WriteString("You are a CLI agent. Use tools to inspect and modify the workspace to complete the task.\n" +
		"Rules:\n" +
		"- Use at most one tool call per step.\n" +
		"- Prefer tools over guessing. Tool outputs are authoritative.")
	if cfg.SubmitEnabled {
		b.WriteString("\n- If you are done, call submit with a concise final answer.")
	} else {
		b.WriteString("\n- If you are done, respond with a concise final answer.")
	}

	maxSteps := "unset"
	if cfg.MaxSteps > 0 {
		maxSteps = fmt.Sprintf("%d", cfg.MaxSteps)
	}
	timeLimit := "unset"
	if cfg.TimeLimit > 0 {
		timeLimit = fmt.Sprintf("%d", int(cfg.TimeLimit.Seconds()))
	}
	fmt.Fprintf(&b,
		"\nEnvironment:\n- cwd: %s\n- max_steps: %s\n- time_limit_sec: %s\n- network_access: enabled\n- sandbox: none",
		cwd, maxSteps, timeLimit)

	b.WriteString("\n\nTools:\n" +
		"- shell_command(command, workdir?, timeout_ms?, max_output_chars?)\n" +
		"- read_file(file_path, offset?, limit?)\n" +
		"- list_dir(dir_path, offset?, limit?, depth?)\n" +
		"- grep_files(pattern, path?, include?, limit?)\n" +
		"- apply_patch(patch)\n")
	if cfg.WebEnabled {
		b.WriteString("- web_search(query, max_results?)\n" +
			"- web_open(url, offset?, limit?)\n" +
			"- web_find(url, pattern, max_results?, context_lines?)\n")
	}
	if cfg.SubmitEnabled {
		b.WriteString("- submit(answer)\n")
	}

	b.WriteString("\nTool usage notes:\n" +
		"- Pagination is 1-indexed: read_file.offset and list_dir.offset start at 1 (not 0). limit/depth must be >= 1.\n" +
		"- grep_files.pattern is a regular expression (RE2 syntax). Escape metacharacters if you want a literal match (e.g. use \"main\\(\" to search for \"main(\").\n" +
		"- If you need to edit files, prefer apply_patch.\n")

	agentsText, err := loadAgentsInstructions(cwd)
	if err != nil {
		return "", "", err
	}
	if agentsText != "" {
		b.WriteString("\n\n")
		b.WriteString(agentsText)
	}
	return b.String(), agentsText, nil
}

// loadAgentsInstructions collects AGENTS.md files from cwd up to the
// filesystem root and joins them with blank lines, closest directory first.
func loadAgentsInstructions(cwd string) (string, error) {
	var notes []string
	dir := cwd
	for {
		candidate := filepath.Join(dir, "AGENTS.md")
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			content, err := os.ReadFile(candidate)
			if err != nil {
				return "", fmt.Errorf("failed to read %s: %w", candidate, err)
			}
			notes = append(notes, string(content))
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return strings.Join(notes, "\n\n"), nil
}
