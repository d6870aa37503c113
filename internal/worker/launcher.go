package worker

import (
	"context"
	"os/exec"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"lobby-server/internal/config"
)

// Args are the positional arguments every worker is started with.
type Args struct {
	PublicIPv4   string
	LocalIPv4    string
	IPv6         string
	InternalPort uint16
	ExternalPort uint16
}

// Positional returns the arguments in the order the worker expects them.
func (a Args) Positional() []string {
	return []string{
		a.PublicIPv4,
		a.LocalIPv4,
		a.IPv6,
		strconv.Itoa(int(a.InternalPort)),
		strconv.Itoa(int(a.ExternalPort)),
	}
}

// Process is a running worker.
type Process interface {
	// Wait blocks until the process exits.
	Wait() error
	// Kill terminates the process. Killing an exited process is not an error.
	Kill() error
	Pid() int
}

// Launcher starts worker processes.
type Launcher interface {
	Launch(ctx context.Context, args Args) (Process, error)
}

// ExecLauncher starts workers as child processes, either by running a
// prebuilt binary or through a build tool command line.
type ExecLauncher struct {
	Mode         config.LaunchMode
	Binary       string
	BuildCommand []string
	Dir          string
	Log          zerolog.Logger
}

func NewExecLauncher(cfg *config.Config, log zerolog.Logger) *ExecLauncher {
	return &ExecLauncher{
		Mode:         cfg.LaunchMode,
		Binary:       cfg.WorkerBinary,
		BuildCommand: cfg.BuildCommand,
		Dir:          cfg.WorkerDir,
		Log:          log.With().Str("component", "launcher").Logger(),
	}
}

// waitDelay bounds how long Wait keeps copying output after the worker
// exited, in case something it spawned still holds the pipes.
const waitDelay = 5 * time.Second

// Command builds the command line for a worker without starting it. The
// worker runs in its own process group; the whole group is killed when ctx
// is done.
func (l *ExecLauncher) Command(ctx context.Context, args Args) (*exec.Cmd, error) {
	var cmd *exec.Cmd
	switch l.Mode {
	case config.LaunchExec:
		if l.Binary == "" {
			return nil, eris.New("exec mode requires a worker binary")
		}
		cmd = exec.CommandContext(ctx, l.Binary, args.Positional()...)
	case config.LaunchBuild:
		if len(l.BuildCommand) == 0 {
			return nil, eris.New("build mode requires a build command")
		}
		argv := append(append([]string{}, l.BuildCommand[1:]...), args.Positional()...)
		cmd = exec.CommandContext(ctx, l.BuildCommand[0], argv...)
	default:
		return nil, eris.Errorf("unknown launch mode %q", l.Mode)
	}
	cmd.Dir = l.Dir
	// Why: in build mode the direct child is the build tool and the worker
	// is its descendant. Killing only the child would leave the worker
	// bound to an external port the pool already handed back.
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay
	return cmd, nil
}

func (l *ExecLauncher) Launch(ctx context.Context, args Args) (Process, error) {
	cmd, err := l.Command(ctx, args)
	if err != nil {
		return nil, err
	}

	out := l.Log.With().Uint16("external_port", args.ExternalPort).Logger()
	cmd.Stdout = out.With().Str("stream", "stdout").Logger()
	cmd.Stderr = out.With().Str("stream", "stderr").Logger()

	if err := cmd.Start(); err != nil {
		return nil, eris.Wrapf(err, "start worker %q", cmd.Path)
	}
	out.Debug().Int("pid", cmd.Process.Pid).Strs("argv", cmd.Args).Msg("Worker started")
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

// Kill terminates the worker and everything it started.
func (p *execProcess) Kill() error {
	return killProcessGroup(p.cmd)
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}
