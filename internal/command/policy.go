package command

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Characters sh -c would interpret. Quotes and backslashes are included so
// sh and SplitArgs always see the same words; globs because sh expands .*
// to include "..".
const shellMetachars = ";|&$><`\\\"'*?[~()\n\r"

// git options that make git run another program or read config from the caller.
var deniedGitOptions = []string{
	"-c",
	"--config-env",
	"--config",
	"--exec-path",
	"--upload-pack",
	"--receive-pack",
	"--exec",
	"--template",
}

// Subcommands that exist to run another program.
var deniedGitSubcommands = map[string]bool{
	"difftool":      true,
	"mergetool":     true,
	"filter-branch": true,
	"send-email":    true,
	"imap-send":     true,
	"instaweb":      true,
	"web--browse":   true,
}

// Subcommand actions that run a caller-supplied command, such as
// git submodule foreach <cmd>.
var deniedGitActions = map[string]string{
	"submodule": "foreach",
	"bisect":    "run",
}

// Per-subcommand options that take a program to run. Short letters are
// matched inside bundles (-ix) and attached values (-xcmd).
var deniedGitSubcommandOptions = map[string]struct {
	short string
	long  []string
}{
	"rebase":  {short: "x", long: []string{"--exec"}},
	"clone":   {short: "uc", long: []string{"--upload-pack", "--config"}},
	"grep":    {short: "O", long: []string{"--open-files-in-pager"}},
	"archive": {long: []string{"--exec", "--remote"}},
}

// git config keys whose values are executed or pull in other config.
var deniedGitConfigKeys = []string{
	"alias.",
	"core.sshcommand",
	"core.fsmonitor",
	"core.hookspath",
	"core.gitproxy",
	"core.askpass",
	"core.editor",
	"core.pager",
	"core.worktree",
	"credential.",
	"filter.",
	"diff.",
	"merge.",
	"sequence.",
	"pager.",
	"gpg.",
	"remote.",
	"submodule.",
	"include.",
	"includeif.",
	"uploadpack.",
	"protocol.",
	"url.",
	"web.",
	"man.",
	"help.",
	"instaweb.",
	"sendemail.",
	"imap.",
}

// PolicyOptions configures argument checks.
type PolicyOptions struct {
	// Containment rejects path arguments that resolve outside the sandbox.
	Containment bool
	// DenyPatterns are gitignore-syntax patterns matched against the path
	// relative to the sandbox root.
	DenyPatterns []string
	// Shell rejects shell metacharacters; set when lines go through sh -c.
	Shell bool
}

// Policy validates the arguments of an allow-listed command.
type Policy struct {
	containment bool
	shell       bool
	deny        *gitignore.GitIgnore
}

// NewPolicy compiles the deny patterns.
func NewPolicy(opts PolicyOptions) *Policy {
	p := &Policy{containment: opts.Containment, shell: opts.Shell}
	if len(opts.DenyPatterns) > 0 {
		p.deny = gitignore.CompileIgnoreLines(opts.DenyPatterns...)
	}
	return p
}

// Check validates args of base run in root. rest is the raw text after the
// base token, used for the metacharacter check in shell mode.
func (p *Policy) Check(root, base string, args []string, rest string) *Error {
	if p.shell && strings.ContainsAny(rest, shellMetachars) {
		return rejected(rest, "shell metacharacters are not permitted")
	}

	if base == "git" {
		if err := checkGitArgs(args); err != nil {
			return err
		}
	}

	for _, arg := range args {
		if err := p.checkPath(root, arg); err != nil {
			return err
		}
	}
	return nil
}

func (p *Policy) checkPath(root, arg string) *Error {
	value := arg
	if strings.HasPrefix(arg, "-") {
		eq := strings.IndexByte(arg, '=')
		if eq < 0 {
			return nil
		}
		value = arg[eq+1:]
	}
	if value == "" || strings.Contains(value, "://") {
		return nil
	}
	target := value
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)

	if p.containment {
		if !within(root, target) {
			return rejected(arg, "path escapes the sandbox")
		}
		if resolved, err := resolveExisting(target); err == nil && !within(root, resolved) {
			return rejected(arg, "path escapes the sandbox through a symlink")
		}
	}

	if p.deny != nil && within(root, target) {
		rel, err := filepath.Rel(root, target)
		if err == nil && rel != "." && p.deny.MatchesPath(filepath.ToSlash(rel)) {
			return rejected(arg, "path is protected")
		}
	}
	return nil
}

func checkGitArgs(args []string) *Error {
	for _, arg := range args {
		if deniedGitOption(arg) {
			return rejected(arg, "git option is not permitted")
		}
	}

	i := gitSubcommandIndex(args)
	if i < 0 {
		return nil
	}
	sub, rest := args[i], args[i+1:]

	if deniedGitSubcommands[sub] {
		return rejected(sub, "git subcommand is not permitted")
	}
	if action, ok := deniedGitActions[sub]; ok {
		if first := firstPositional(rest); first == action {
			return rejected(action, "git subcommand is not permitted")
		}
	}
	if opts, ok := deniedGitSubcommandOptions[sub]; ok {
		for _, arg := range rest {
			if arg == "--" {
				break
			}
			if matchesLongOption(arg, opts.long) {
				return rejected(arg, "git option is not permitted")
			}
			if opts.short != "" && len(arg) > 1 && arg[0] == '-' && arg[1] != '-' &&
				strings.ContainsAny(arg[1:], opts.short) {
				return rejected(arg, "git option is not permitted")
			}
		}
	}

	if sub == "config" {
		for _, arg := range rest {
			lower := strings.ToLower(arg)
			for _, key := range deniedGitConfigKeys {
				if strings.HasPrefix(lower, key) {
					return rejected(arg, "git config key is not permitted")
				}
			}
		}
	}
	return nil
}

func deniedGitOption(arg string) bool {
	// -ckey=value is the attached form of -c.
	if strings.HasPrefix(arg, "-c") && !strings.HasPrefix(arg, "--") {
		return true
	}
	for _, opt := range deniedGitOptions {
		if arg == opt || strings.HasPrefix(arg, opt+"=") {
			return true
		}
	}
	return false
}

// matchesLongOption reports whether arg names one of opts, including the
// unambiguous abbreviations git accepts (--exe for --exec).
func matchesLongOption(arg string, opts []string) bool {
	if !strings.HasPrefix(arg, "--") || len(arg) < 3 {
		return false
	}
	name, _, _ := strings.Cut(arg, "=")
	for _, opt := range opts {
		if strings.HasPrefix(opt, name) {
			return true
		}
	}
	return false
}

// gitSubcommandIndex returns the index of the first argument that is neither
// a global option nor the value of one, or -1.
func gitSubcommandIndex(args []string) int {
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "-C", "--git-dir", "--work-tree", "--namespace":
			i++
		default:
			if !strings.HasPrefix(arg, "-") {
				return i
			}
		}
	}
	return -1
}

func firstPositional(args []string) string {
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			return arg
		}
	}
	return ""
}

func rejected(token, reason string) *Error {
	return newError(KindArgumentRejected, fmt.Sprintf("Argument '%s' rejected: %s.", token, reason), nil)
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// resolveExisting resolves symlinks in the longest existing prefix of path.
func resolveExisting(path string) (string, error) {
	suffix := ""
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(resolved, suffix), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		suffix = filepath.Join(filepath.Base(current), suffix)
		current = parent
	}
}

// isDir reports whether path exists and is a directory.
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
