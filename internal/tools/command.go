package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrCommandDenied is returned for any command rejected before it runs.
var ErrCommandDenied = errors.New("command denied")

// shellMetacharacters that are never permitted inside an argument, since the
// Command Executor never invokes a shell (no "sh -c") — these characters
// would otherwise pass through as inert literal argv bytes to exec.Command,
// but their presence almost always signals an attempt at redirection,
// piping, substitution, or chaining that the allowlist model is meant to
// prevent outright.
const shellMetacharacters = "|&;$`<>(){}*?[]~\n"

// CommandExecutor runs allowlisted binaries directly via argv, never through
// a shell. This departs from a deny-pattern + "sh -c" design: an allowlist
// of binary names is enumerable and auditable, while a shell-metacharacter
// denylist is not — there is always one more bypass. See REDESIGN FLAGS.
type CommandExecutor struct {
	workingDir string
	timeout    time.Duration
	allowlist  map[string]bool
}

func NewCommandExecutor(workingDir string, allowlist []string, timeout time.Duration) *CommandExecutor {
	set := make(map[string]bool, len(allowlist))
	for _, name := range allowlist {
		set[name] = true
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &CommandExecutor{workingDir: workingDir, timeout: timeout, allowlist: set}
}

func (e *CommandExecutor) Name() string { return "run_command" }
func (e *CommandExecutor) Description() string {
	return "Run an allowlisted command with arguments (no shell, no pipes, no redirection)"
}
func (e *CommandExecutor) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The binary name followed by its arguments, e.g. \"git status\"",
			},
		},
		"required": []string{"command"},
	}
}

func (e *CommandExecutor) Execute(ctx context.Context, args map[string]interface{}) *Result {
	command, _ := args["command"].(string)
	if strings.TrimSpace(command) == "" {
		return ErrorResult("command is required")
	}

	argv, err := splitArgv(command)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if len(argv) == 0 {
		return ErrorResult("command is required")
	}

	if err := e.validate(argv); err != nil {
		return ErrorResult(err.Error())
	}

	cwd := WorkspaceFromCtx(ctx)
	if cwd == "" {
		cwd = e.workingDir
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var output string
	if stdout.Len() > 0 {
		output = stdout.String()
	}
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n"
		}
		output += "STDERR:\n" + stderr.String()
	}

	if runErr != nil {
		if runCtx.Err() != nil {
			return ErrorResult(fmt.Sprintf("command timed out after %s", e.timeout))
		}
		if output == "" {
			output = runErr.Error()
		}
		return ErrorResult(output)
	}

	if output == "" {
		output = "(command completed with no output)"
	}
	return NewResult(output)
}

// validate enforces the allowlist and rejects any argument carrying a shell
// metacharacter, even though argv-based exec already prevents those
// characters from being interpreted — belt-and-suspenders against a future
// caller that might stringify argv through a shell.
func (e *CommandExecutor) validate(argv []string) error {
	binary := argv[0]
	if !e.allowlist[binary] {
		return fmt.Errorf("%w: %q is not in the command allowlist", ErrCommandDenied, binary)
	}
	for _, arg := range argv {
		if strings.ContainsAny(arg, shellMetacharacters) {
			return fmt.Errorf("%w: argument %q contains a disallowed character", ErrCommandDenied, arg)
		}
	}
	return nil
}

// splitArgv tokenizes a command line into argv, honoring single and double
// quotes but performing no shell expansion, substitution, or globbing.
func splitArgv(command string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inWord  bool
		quote   rune
	)

	flush := func() {
		if inWord {
			args = append(args, current.String())
			current.Reset()
			inWord = false
		}
	}

	for _, r := range command {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			flush()
		default:
			inWord = true
			current.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: unterminated quote", ErrCommandDenied)
	}
	flush()
	return args, nil
}
