package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"go.starlark.net/starlark"

	"github.com/leapstack-labs/scopestar/internal/cli/output"
	"github.com/leapstack-labs/scopestar/internal/engine"
	"github.com/leapstack-labs/scopestar/internal/loader"
	starrt "github.com/leapstack-labs/scopestar/internal/starlark"
)

const (
	promptPrimary      = ">>> "
	promptContinuation = "... "
)

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive Starlark session",
		Long: `Start an interactive session for plain Starlark.

Classes cannot be typed at the prompt: the class dialect is enabled per file.
Put classes in a .star file and load() it; the file is rewritten as usual and
its instances are destroyed when the session ends.`,
		Example: `  scopestar repl
  >>> load("lib/account.star", "Account")`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runREPL(cmd)
		},
	}
}

// replState evaluates chunks for one session.
type replState struct {
	session *starrt.Session
	rt      *starrt.Runtime
	r       *output.Renderer
}

func newREPLState(cmdCtx *CommandContext, stdout io.Writer) *replState {
	cfg := cmdCtx.Cfg
	rt := starrt.NewRuntime(starrt.Config{
		Name:             "repl",
		Logger:           cmdCtx.Logger,
		Stdout:           stdout,
		MaxSteps:         cfg.MaxSteps,
		DestructorPrefix: cfg.DestructorPrefix,
		Interactive:      true,
	})
	loader.New(rt, loader.Config{
		SearchPath:  cfg.SearchPath,
		Options:     cfg.RewriteOptions(),
		Predeclared: engine.Predeclared(),
		Logger:      cmdCtx.Logger,
	})

	opts := cfg.Dialect.FileOptions()
	// load() bindings stay visible to later chunks
	opts.LoadBindsGlobally = true
	return &replState{
		session: starrt.NewSession(rt, &opts, engine.Predeclared()),
		rt:      rt,
		r:       cmdCtx.Renderer,
	}
}

func runREPL(cmd *cobra.Command) error {
	cmdCtx := NewCommandContext(cmd)
	s := newREPLState(cmdCtx, cmd.OutOrStdout())

	historyFile := ""
	if cmdCtx.Cfg.ProjectRoot != "" {
		historyFile = filepath.Join(cmdCtx.Cfg.ProjectRoot, ".scopestar", "repl_history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptPrimary,
		HistoryFile:     historyFile,
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "scopestar %s (Starlark). Type .help for commands, .quit to exit\n", starrt.FeatureVersion)

	return s.loop(func(prompt string) (string, error) {
		rl.SetPrompt(prompt)
		return rl.Readline()
	})
}

// loop reads and evaluates chunks until next reports io.EOF or .quit is
// entered, then closes the runtime.
func (s *replState) loop(next func(prompt string) (string, error)) error {
	for {
		quit, err := s.step(next)
		if err != nil || quit {
			if cerr := s.rt.Close(); cerr != nil {
				s.r.Diagnostic(diagnose(cerr))
			}
			return err
		}
	}
}

// step reads one chunk. It returns quit=true at end of input.
func (s *replState) step(next func(prompt string) (string, error)) (quit bool, err error) {
	prompt := promptPrimary
	var first string
	eof := false
	readLine := func() ([]byte, error) {
		line, err := next(prompt)
		prompt = promptContinuation
		if err != nil {
			if errors.Is(err, io.EOF) {
				eof = true
			}
			return nil, err
		}
		if first == "" {
			first = line
		}
		return []byte(line + "\n"), nil
	}

	// Dot-commands are whole lines and never reach the parser.
	line, err := next(prompt)
	switch {
	case errors.Is(err, io.EOF):
		return true, nil
	case errors.Is(err, readline.ErrInterrupt):
		return false, nil
	case err != nil:
		return true, err
	}
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, ".") {
		return s.dot(trimmed), nil
	}
	if trimmed == "" {
		return false, nil
	}

	pending := []byte(line + "\n")
	first = line
	prompt = promptContinuation
	f, err := s.session.Options().ParseCompoundStmt(starrt.InteractiveFile, func() ([]byte, error) {
		if pending != nil {
			b := pending
			pending = nil
			return b, nil
		}
		return readLine()
	})
	if err != nil {
		if eof {
			return true, nil
		}
		if errors.Is(err, readline.ErrInterrupt) {
			return false, nil
		}
		s.report(err, first)
		return false, nil
	}

	v, err := s.session.Eval(f)
	if err != nil {
		s.report(err, first)
		return false, nil
	}
	if v != nil && v != starlark.None {
		s.r.Println(v)
	}
	return false, nil
}

func (s *replState) report(err error, first string) {
	d := diagnose(err)
	if strings.HasPrefix(strings.TrimSpace(first), "class ") {
		d.Kind = "unsupported"
		d.Message = "classes cannot be defined interactively"
		d.Hint = "put the class in a .star file that loads \"cpp\" and load() that file"
	}
	s.r.Diagnostic(d)
}

// dot handles a dot-command and reports whether the session should end.
func (s *replState) dot(line string) bool {
	switch strings.ToLower(strings.Fields(line)[0]) {
	case ".quit", ".exit":
		return true
	case ".help":
		s.r.Println(replHelp)
	case ".names":
		s.r.Println(strings.Join(s.session.Names(), " "))
	case ".live":
		live := s.rt.Live()
		if len(live) == 0 {
			s.r.Println(s.r.Muted("no live instances"))
		} else {
			s.r.Println(strings.Join(live, " "))
		}
	default:
		s.r.Error(fmt.Sprintf("unknown command: %s (type .help for commands)", line))
	}
	return false
}

const replHelp = `Commands:
  .help           Show this help message
  .names          List global names
  .live           List instances that are still alive
  .quit / .exit   Exit the REPL (destroys remaining instances)

Tips:
  - Blocks continue until an empty line
  - load("file.star", "Name") brings classes from a file into the session`

// completer offers global names and dot-commands.
func (s *replState) completer() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, name := range s.session.Names() {
		items = append(items, readline.PcItem(name))
	}
	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".names"),
		readline.PcItem(".live"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
	return readline.NewPrefixCompleter(items...)
}
