package julius

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrTimeout reports that Julius did not return within the bound.
	ErrTimeout = errors.New("julius timed out")
	// ErrCrash reports a non-zero Julius exit.
	ErrCrash = errors.New("julius exited abnormally")
	// ErrNoAlignment reports output with no phoneme alignment section.
	ErrNoAlignment = errors.New("julius produced no alignment")
)

// Segment is one aligned unit parsed from Julius output. Frame indices
// are in the engine's native frame rate.
type Segment struct {
	StartFrame int
	EndFrame   int
	Score      float64
	Phone      string
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps Julius CLI interactions.
type Client struct {
	binary  string
	timeout time.Duration
	exec    Executor
}

// New constructs a Julius client.
func New(binary string, timeout time.Duration, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "julius"
	}
	client := &Client{
		binary:  binary,
		timeout: timeout,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Request names the on-disk inputs for one alignment call.
type Request struct {
	AudioPath   string
	GrammarBase string // path prefix of the .dfa/.dict pair
	ModelDir    string // folder holding hmmdefs and optional tiedlist
}

// Align runs Julius over one clip and returns the parsed phoneme
// segments in output order.
func (c *Client) Align(ctx context.Context, req Request) ([]Segment, error) {
	if req.AudioPath == "" {
		return nil, errors.New("julius align: empty audio path")
	}
	if req.GrammarBase == "" {
		return nil, errors.New("julius align: empty grammar base")
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{
		"-input", "file",
		"-dfa", req.GrammarBase + ".dfa",
		"-v", req.GrammarBase + ".dict",
		"-h", filepath.Join(req.ModelDir, "hmmdefs"),
		"-palign",
		"-quiet",
	}
	if tiedlist := filepath.Join(req.ModelDir, "tiedlist"); fileExists(tiedlist) {
		args = append(args, "-hlist", tiedlist)
	}
	args = append(args, req.AudioPath)

	var lines []string
	err := c.exec.Run(runCtx, c.binary, args, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCrash, err)
	}

	segments, err := parseAlignment(lines)
	if err != nil {
		return nil, err
	}
	return segments, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Julius forks helpers; kill the whole process group.
		if cmd.Process != nil {
			_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		}
		return nil
	}
	cmd.WaitDelay = 5 * time.Second

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
	var tail strings.Builder
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(stdout, onStdout)
	}()
	go func() {
		defer wg.Done()
		scanLines(stderr, func(line string) {
			if tail.Len() < 2048 {
				tail.WriteString(line)
				tail.WriteByte('\n')
			}
		})
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		msg := strings.TrimSpace(tail.String())
		if msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

func scanLines(r io.Reader, fn func(string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if fn != nil {
			fn(sc.Text())
		}
	}
}
