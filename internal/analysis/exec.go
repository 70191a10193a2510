package analysis

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"blockflow/internal/config"
	"blockflow/internal/frames"
	"blockflow/internal/logging"
	"blockflow/internal/services"
)

// Executor abstracts command execution for testability. A nil onOutput
// attaches the command to the process's terminal.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onOutput func(string)) error
}

// ExecOption configures an exec analyzer.
type ExecOption func(*ExecAnalyzer)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) ExecOption {
	return func(a *ExecAnalyzer) {
		if exec != nil {
			a.exec = exec
		}
	}
}

// ExecAnalyzer runs configured argv templates for each capability. A
// capability without a command does nothing.
//
// Placeholders are replaced inside every argument: {mode}, {input},
// {output_dir}, {record_file} (where preprocess must write the frame's
// record), {block_dir}, {output_file}, {raw_dir}, {analyses_dir} and
// {params} (the capability's parameters as JSON). {block_dirs} and
// {positions} expand to one argument per element when they form a whole
// argument and to a path-list-separated string otherwise.
type ExecAnalyzer struct {
	mode     string
	commands config.Commands
	exec     Executor
	logger   *slog.Logger
}

// NewExec constructs an exec analyzer for mode.
func NewExec(mode string, commands config.Commands, logger *slog.Logger, opts ...ExecOption) *ExecAnalyzer {
	a := &ExecAnalyzer{
		mode:     mode,
		commands: commands,
		exec:     commandExecutor{},
		logger:   logging.NewComponentLogger(logger, "analyzer").With(logging.String(logging.FieldMode, mode)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FillDefaults makes every option map non-nil.
func (a *ExecAnalyzer) FillDefaults(p Params) (Params, error) {
	p = p.Clone()
	if p.Segment.Options == nil {
		p.Segment.Options = map[string]any{}
	}
	if p.Track == nil {
		p.Track = map[string]any{}
	}
	if p.Collate == nil {
		p.Collate = map[string]any{}
	}
	return p, nil
}

func (a *ExecAnalyzer) PreprocessOne(ctx context.Context, inputFile, outputDir string, p Params) error {
	opts := maps.Clone(p.Segment.Options)
	if opts == nil {
		opts = map[string]any{}
	}
	opts["pattern"] = p.Segment.Pattern
	return a.run(ctx, "preprocess", a.commands.Preprocess, vars{
		scalars: map[string]string{
			"input":       inputFile,
			"output_dir":  outputDir,
			"record_file": filepath.Join(outputDir, frames.RecordName(p.Segment.Pattern, filepath.Base(inputFile))),
		},
		params: opts,
	})
}

func (a *ExecAnalyzer) TrackBlock(ctx context.Context, blockDir, outputFile string, track map[string]any) error {
	return a.run(ctx, "track", a.commands.Track, vars{
		scalars: map[string]string{"block_dir": blockDir, "output_file": outputFile},
		params:  track,
	})
}

func (a *ExecAnalyzer) StitchBlocks(ctx context.Context, blockDirs []string, track map[string]any) error {
	return a.run(ctx, "stitch", a.commands.Stitch, vars{
		lists:  map[string][]string{"block_dirs": blockDirs},
		params: track,
	})
}

func (a *ExecAnalyzer) CollateBlocks(ctx context.Context, blockDirs []string, outputFile string, collate map[string]any) error {
	return a.run(ctx, "collate", a.commands.Collate, vars{
		scalars: map[string]string{"output_file": outputFile},
		lists:   map[string][]string{"block_dirs": blockDirs},
		params:  collate,
	})
}

func (a *ExecAnalyzer) PosteditBlock(ctx context.Context, blockDir string, general GeneralParams) error {
	return a.run(ctx, "postedit", a.commands.Postedit, vars{
		scalars: map[string]string{"block_dir": blockDir},
		params:  general,
	})
}

func (a *ExecAnalyzer) InteractiveEdit(ctx context.Context, rawDir, analysesDir string, positions []string) error {
	return a.run(ctx, "edit", a.commands.Edit, vars{
		scalars:     map[string]string{"raw_dir": rawDir, "analyses_dir": analysesDir},
		lists:       map[string][]string{"positions": positions},
		interactive: true,
	})
}

func (a *ExecAnalyzer) run(ctx context.Context, capability string, template []string, v vars) error {
	if len(template) == 0 {
		a.logger.Debug("no command configured; skipping", logging.String("capability", capability))
		return nil
	}
	v.scalars = withScalar(v.scalars, "mode", a.mode)
	argv, err := expand(template, v)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, capability, "expand command",
			fmt.Sprintf("Invalid %s command for mode %s", capability, a.mode), err)
	}

	logger := logging.WithContext(ctx, a.logger)
	logger.Debug("running analysis command",
		logging.String("capability", capability),
		logging.String("command", strings.Join(argv, " ")),
	)
	var onOutput func(string)
	if !v.interactive {
		onOutput = func(line string) {
			logger.Debug("command output", logging.String("capability", capability), logging.String("line", line))
		}
	}
	if err := a.exec.Run(ctx, argv[0], argv[1:], onOutput); err != nil {
		return services.Wrap(services.ErrExternalTool, capability, "run command",
			fmt.Sprintf("%s command for mode %s failed", capability, a.mode), err)
	}
	return nil
}

type vars struct {
	scalars     map[string]string
	lists       map[string][]string
	params      any
	interactive bool
}

func withScalar(m map[string]string, key, value string) map[string]string {
	if m == nil {
		m = make(map[string]string, 1)
	}
	m[key] = value
	return m
}

func expand(template []string, v vars) ([]string, error) {
	paramsJSON := "{}"
	if v.params != nil {
		data, err := json.Marshal(v.params)
		if err != nil {
			return nil, fmt.Errorf("encode params: %w", err)
		}
		paramsJSON = string(data)
	}

	pairs := make([]string, 0, 2*(len(v.scalars)+len(v.lists)+1))
	for key, value := range v.scalars {
		pairs = append(pairs, "{"+key+"}", value)
	}
	for key, values := range v.lists {
		pairs = append(pairs, "{"+key+"}", strings.Join(values, string(os.PathListSeparator)))
	}
	pairs = append(pairs, "{params}", paramsJSON)
	// One pass: substituted values are never scanned for placeholders again.
	replacer := strings.NewReplacer(pairs...)

	argv := make([]string, 0, len(template))
	for _, arg := range template {
		if list, ok := wholeList(arg, v.lists); ok {
			argv = append(argv, list...)
			continue
		}
		argv = append(argv, replacer.Replace(arg))
	}
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, fmt.Errorf("command has no program")
	}
	return argv, nil
}

func wholeList(arg string, lists map[string][]string) ([]string, bool) {
	for key, values := range lists {
		if arg == "{"+key+"}" {
			return values, true
		}
	}
	return nil, false
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	if onOutput == nil {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("run %s: %w", filepath.Base(binary), err)
		}
		return nil
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			onOutput(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
