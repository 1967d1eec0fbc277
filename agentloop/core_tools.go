package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

// RegisterCoreTools registers the workspace tool suite on a ToolRegistry:
// shell_command, read_file, list_dir, grep_files, and apply_patch. The tools
// delegate to the provided Workspace.
func RegisterCoreTools(reg *ToolRegistry, ws *Workspace) {
	registerShellCommand(reg, ws)
	registerReadFile(reg, ws)
	registerListDir(reg, ws)
	registerGrepFiles(reg, ws)
	registerApplyPatch(reg, ws)
}

// RegisterSubmitTool registers the submit tool. The session intercepts
// submit before dispatch reaches the executor.
func RegisterSubmitTool(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "submit",
			Description: "Signals completion and returns the final answer.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"answer": map[string]interface{}{
						"type":        "string",
						"description": "Final answer.",
					},
				},
				"required":             []interface{}{"answer"},
				"additionalProperties": false,
			},
		},
		Executor: func(context.Context, json.RawMessage) (string, error) {
			return "", fmt.Errorf("submit is handled by the session loop")
		},
	})
}

func registerShellCommand(reg *ToolRegistry, ws *Workspace) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "shell_command",
			Description: "Runs a shell command and returns its output.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command": map[string]interface{}{
						"type":        "string",
						"description": "The shell command to execute.",
					},
					"workdir": map[string]interface{}{
						"type":        []interface{}{"string", "null"},
						"description": "Working directory for the command.",
					},
					"timeout_ms": map[string]interface{}{
						"type":        []interface{}{"number", "null"},
						"description": "Timeout in milliseconds.",
					},
					"max_output_chars": map[string]interface{}{
						"type":        []interface{}{"number", "null"},
						"description": "Maximum output characters to return.",
					},
				},
				// Some providers enforce that `required` includes every key in
				// `properties`. Optional semantics are kept by allowing null and
				// handling null/missing in the tool.
				"required":             []interface{}{"command", "workdir", "timeout_ms", "max_output_chars"},
				"additionalProperties": false,
			},
		},
		Executor: ws.shellCommand,
	})
}

func registerReadFile(reg *ToolRegistry, ws *Workspace) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "read_file",
			Description: "Reads a paginated range of lines from a file.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "Path to the file to read.",
					},
					"offset": map[string]interface{}{
						"type":        []interface{}{"integer", "null"},
						"minimum":     1.0,
						"default":     1,
						"description": "1-indexed start line (>= 1).",
					},
					"limit": map[string]interface{}{
						"type":        []interface{}{"integer", "null"},
						"minimum":     1.0,
						"default":     DefaultReadLimit,
						"description": "Maximum number of lines to return (>= 1).",
					},
				},
				"required":             []interface{}{"file_path", "offset", "limit"},
				"additionalProperties": false,
			},
		},
		Executor: ws.readFile,
	})
}

func registerListDir(reg *ToolRegistry, ws *Workspace) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "list_dir",
			Description: "Lists directory entries with pagination and depth control.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"dir_path": map[string]interface{}{
						"type":        "string",
						"description": "Path to the directory to list.",
					},
					"offset": map[string]interface{}{
						"type":        []interface{}{"integer", "null"},
						"minimum":     1.0,
						"default":     1,
						"description": "1-indexed start entry (>= 1).",
					},
					"limit": map[string]interface{}{
						"type":        []interface{}{"integer", "null"},
						"minimum":     1.0,
						"default":     DefaultListLimit,
						"description": "Maximum number of entries to return (>= 1).",
					},
					"depth": map[string]interface{}{
						"type":        []interface{}{"integer", "null"},
						"minimum":     1.0,
						"default":     1,
						"description": "Maximum directory depth to traverse (>= 1).",
					},
				},
				"required":             []interface{}{"dir_path", "offset", "limit", "depth"},
				"additionalProperties": false,
			},
		},
		Executor: ws.listDir,
	})
}

func registerGrepFiles(reg *ToolRegistry, ws *Workspace) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "grep_files",
			Description: "Searches files for a pattern and returns matching lines.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"pattern": map[string]interface{}{
						"type":        "string",
						"description": "Regular expression (RE2 syntax) to search for; escape metacharacters for literal matches.",
					},
					"path": map[string]interface{}{
						"type":        []interface{}{"string", "null"},
						"description": "Root path to search.",
					},
					"include": map[string]interface{}{
						"type":        []interface{}{"string", "null"},
						"description": "Optional glob filter for files (matched against path relative to root).",
					},
					"limit": map[string]interface{}{
						"type":        []interface{}{"integer", "null"},
						"minimum":     1.0,
						"default":     DefaultGrepLimit,
						"description": "Maximum number of matches to return (>= 1).",
					},
				},
				"required":             []interface{}{"pattern", "path", "include", "limit"},
				"additionalProperties": false,
			},
		},
		Executor: ws.grepFiles,
	})
}

func registerApplyPatch(reg *ToolRegistry, ws *Workspace) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "apply_patch",
			Description: "Applies a unified diff patch.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"patch": map[string]interface{}{
						"type":        "string",
						"description": "Unified diff to apply.",
					},
				},
				"required":             []interface{}{"patch"},
				"additionalProperties": false,
			},
		},
		Executor: ws.applyPatch,
	})
}

type shellArgs struct {
	Command        string  `json:"command"`
	Workdir        *string `json:"workdir"`
	TimeoutMs      *int64  `json:"timeout_ms"`
	MaxOutputChars *int    `json:"max_output_chars"`
}

type shellResult struct {
	ExitCode  int    `json:"exit_code"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	TimedOut  bool   `json:"timed_out"`
	Truncated bool   `json:"truncated"`
}

func (w *Workspace) shellCommand(ctx context.Context, raw json.RawMessage) (string, error) {
	var args shellArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("invalid shell_command arguments: %w", err)
	}

	dir := w.dir
	if args.Workdir != nil && *args.Workdir != "" {
		dir = w.Resolve(*args.Workdir)
	}
	var timeout time.Duration
	if args.TimeoutMs != nil && *args.TimeoutMs > 0 {
		timeout = time.Duration(*args.TimeoutMs) * time.Millisecond
	}

	res, err := w.runCommand(ctx, dir, "", timeout, "bash", "-lc", args.Command)
	if err != nil {
		return "", err
	}

	limit := w.maxOutputChars
	if args.MaxOutputChars != nil && *args.MaxOutputChars > 0 {
		limit = *args.MaxOutputChars
	}
	stdout, stdoutTruncated := Truncate(res.Stdout, limit)
	stderr, stderrTruncated := Truncate(res.Stderr, limit)

	out, err := json.Marshal(shellResult{
		ExitCode:  res.ExitCode,
		Stdout:    stdout,
		Stderr:    stderr,
		TimedOut:  res.TimedOut,
		Truncated: stdoutTruncated || stderrTruncated,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type readFileArgs struct {
	FilePath string `json:"file_path"`
	Offset   *int   `json:"offset"`
	Limit    *int   `json:"limit"`
}

type readFileResult struct {
	FilePath   string   `json:"file_path"`
	TotalLines int      `json:"total_lines"`
	StartLine  int      `json:"start_line"`
	EndLine    int      `json:"end_line"`
	Lines      []string `json:"lines"`
}

func (w *Workspace) readFile(_ context.Context, raw json.RawMessage) (string, error) {
	var args readFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("invalid read_file arguments: %w", err)
	}

	offset := 1
	if args.Offset != nil {
		offset = *args.Offset
	}
	limit := DefaultReadLimit
	if args.Limit != nil && *args.Limit < limit {
		limit = *args.Limit
	}
	if offset < 1 || limit < 1 {
		return ToolError("invalid pagination: read_file.offset and read_file.limit must be >= 1 (offset is 1-indexed)"), nil
	}

	path := w.Resolve(args.FilePath)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}

	lines := splitLines(string(data))
	total := len(lines)
	if offset > total {
		return ToolError(fmt.Sprintf("offset (%d) is beyond total lines (%d)", offset, total)), nil
	}

	end := offset + limit - 1
	if end > total {
		end = total
	}
	numbered := make([]string, 0, end-offset+1)
	for i := offset; i <= end; i++ {
		numbered = append(numbered, fmt.Sprintf("%d: %s", i, lines[i-1]))
	}

	out, err := json.Marshal(readFileResult{
		FilePath:   path,
		TotalLines: total,
		StartLine:  offset,
		EndLine:    end,
		Lines:      numbered,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type listDirArgs struct {
	DirPath string `json:"dir_path"`
	Offset  *int   `json:"offset"`
	Limit   *int   `json:"limit"`
	Depth   *int   `json:"depth"`
}

type dirEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // "file" or "dir"
}

type listDirResult struct {
	DirPath      string     `json:"dir_path"`
	TotalEntries int        `json:"total_entries"`
	StartIndex   int        `json:"start_index"`
	EndIndex     int        `json:"end_index"`
	Entries      []dirEntry `json:"entries"`
}

func (w *Workspace) listDir(_ context.Context, raw json.RawMessage) (string, error) {
	var args listDirArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("invalid list_dir arguments: %w", err)
	}

	offset := 1
	if args.Offset != nil {
		offset = *args.Offset
	}
	limit := DefaultListLimit
	if args.Limit != nil && *args.Limit < limit {
		limit = *args.Limit
	}
	depth := 1
	if args.Depth != nil {
		depth = *args.Depth
	}
	if offset < 1 || limit < 1 || depth < 1 {
		return ToolError("invalid pagination: list_dir.offset, list_dir.limit, and list_dir.depth must be >= 1 (offset is 1-indexed)"), nil
	}

	root := w.Resolve(args.DirPath)
	var entries []dirEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		entryType := "file"
		if d.IsDir() {
			entryType = "dir"
		}
		entries = append(entries, dirEntry{Path: path, Type: entryType})

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if d.IsDir() && len(strings.Split(rel, string(filepath.Separator))) >= depth {
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to list directory %s: %w", root, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	total := len(entries)
	if offset > total && total > 0 {
		return ToolError(fmt.Sprintf("offset (%d) is beyond total entries (%d)", offset, total)), nil
	}

	result := listDirResult{
		DirPath: root,
		Entries: []dirEntry{},
	}
	if total > 0 {
		end := offset + limit - 1
		if end > total {
			end = total
		}
		result.TotalEntries = total
		result.StartIndex = offset
		result.EndIndex = end
		result.Entries = entries[offset-1 : end]
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type grepFilesArgs struct {
	Pattern string  `json:"pattern"`
	Path    *string `json:"path"`
	Include *string `json:"include"`
	Limit   *int    `json:"limit"`
}

type grepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

type grepFilesResult struct {
	Pattern   string      `json:"pattern"`
	Root      string      `json:"root"`
	Matches   []grepMatch `json:"matches"`
	Truncated bool        `json:"truncated"`
}

func (w *Workspace) grepFiles(_ context.Context, raw json.RawMessage) (string, error) {
	var args grepFilesArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("invalid grep_files arguments: %w", err)
	}

	limit := DefaultGrepLimit
	if args.Limit != nil && *args.Limit < limit {
		limit = *args.Limit
	}
	if limit < 1 {
		return ToolError("invalid limit: grep_files.limit must be >= 1"), nil
	}

	pattern, err := regexp.Compile(args.Pattern)
	if err != nil {
		return ToolError(fmt.Sprintf(
			"invalid regex pattern: %s: %v (tip: escape metacharacters for literal matches, e.g. %q to match %q)",
			args.Pattern, err, `main\(`, "main(")), nil
	}

	include := ""
	if args.Include != nil {
		include = *args.Include
	}
	if include != "" && !doublestar.ValidatePattern(include) {
		return ToolError(fmt.Sprintf("invalid include glob: %s", include)), nil
	}

	root := w.dir
	if args.Path != nil && *args.Path != "" {
		root = w.Resolve(*args.Path)
	}

	matches := []grepMatch{}
	truncated := false
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if include != "" {
			// Match include globs against the path relative to the search root
			// so callers can use patterns like "cmd/ra/main.go" or "**/*.go"
			// without needing absolute paths.
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			if ok, _ := doublestar.Match(include, filepath.ToSlash(rel)); !ok {
				return nil
			}
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil || !utf8.Valid(data) {
			return nil
		}
		for i, line := range splitLines(string(data)) {
			if !pattern.MatchString(line) {
				continue
			}
			matches = append(matches, grepMatch{Path: path, Line: i + 1, Text: line})
			if len(matches) >= limit {
				truncated = true
				return fs.SkipAll
			}
		}
		return nil
	})

	out, err := json.Marshal(grepFilesResult{
		Pattern:   args.Pattern,
		Root:      root,
		Matches:   matches,
		Truncated: truncated,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type applyPatchArgs struct {
	Patch string `json:"patch"`
}

type applyPatchResult struct {
	StripLevel int    `json:"strip_level"`
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	Truncated  bool   `json:"truncated"`
}

func (w *Workspace) applyPatch(ctx context.Context, raw json.RawMessage) (string, error) {
	var args applyPatchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("invalid apply_patch arguments: %w", err)
	}

	strip := DetectStripLevel(args.Patch)
	res, err := w.runCommand(ctx, w.dir, args.Patch, 0, "patch", "-p"+strconv.Itoa(strip))
	if err != nil {
		return "", err
	}

	stdout, stdoutTruncated := Truncate(res.Stdout, w.maxOutputChars)
	stderr, stderrTruncated := Truncate(res.Stderr, w.maxOutputChars)

	out, err := json.Marshal(applyPatchResult{
		StripLevel: strip,
		ExitCode:   res.ExitCode,
		Stdout:     stdout,
		Stderr:     stderr,
		Truncated:  stdoutTruncated || stderrTruncated,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// splitLines splits on newlines the way line-oriented tools expect: a
// trailing newline does not produce a final empty line.
func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
