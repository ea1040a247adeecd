package hatsetup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	aptLockRetries   = 3
	aptLockRetryWait = 10 * time.Second
)

// Result is the captured outcome of one external command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// OK reports whether the command exited with status zero.
func (r Result) OK() bool { return r.ExitCode == 0 }

// Runner executes a single external command. It exists as an interface so
// that tests can record and fake command invocations.
type Runner interface {
	Run(ctx context.Context, input, name string, args ...string) (Result, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, input, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// A non-zero exit is a result, not a run error.
		result.ExitCode = exitErr.ExitCode()
		err = nil
	} else if err != nil {
		result.ExitCode = -1
		err = fmt.Errorf("running %s: %w", name, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%s: %w", name, ctxErr)
	}
	return result, err
}

// System runs the commands the tool needs against the operating system,
// adding sudo whenever the process isn't root.
type System struct {
	cfg    *Config
	runner Runner
	sudo   bool
	sleep  func(time.Duration)
}

func NewSystem(cfg *Config) *System {
	return &System{
		cfg:    cfg,
		runner: execRunner{},
		sudo:   os.Geteuid() != 0,
		sleep:  time.Sleep,
	}
}

// Run executes a command as the current user.
func (s *System) Run(ctx context.Context, name string, args ...string) (Result, error) {
	return s.runner.Run(ctx, "", name, args...)
}

// RunInput executes a command as the current user with input on stdin.
func (s *System) RunInput(ctx context.Context, input, name string, args ...string) (Result, error) {
	return s.runner.Run(ctx, input, name, args...)
}

// Sudo executes a command with elevated privileges.
func (s *System) Sudo(ctx context.Context, name string, args ...string) (Result, error) {
	return s.SudoInput(ctx, "", name, args...)
}

// SudoInput executes a command with elevated privileges and input on stdin.
func (s *System) SudoInput(ctx context.Context, input, name string, args ...string) (Result, error) {
	if s.sudo {
		args = append([]string{name}, args...)
		name = "sudo"
	}
	return s.runner.Run(ctx, input, name, args...)
}

// Interactive runs a command attached to the terminal, with elevated
// privileges when the process isn't root. Used for programs that need the
// tty, like editors, which the captured Runner cannot host.
func (s *System) Interactive(name string, args ...string) error {
	if s.sudo {
		args = append([]string{name}, args...)
		name = "sudo"
	}
	cmd := exec.Command(name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// WriteRootFile writes content to a (usually root-owned) file by piping it
// through tee, the way the shell instructions for this board do it.
func (s *System) WriteRootFile(ctx context.Context, path, content string) error {
	result, err := s.SudoInput(ctx, content, "tee", path)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("writing %s: %s", path, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// BackupFile copies a file to a timestamped sibling before it gets modified,
// and returns the backup path.
func (s *System) BackupFile(ctx context.Context, path string) (string, error) {
	backupPath := fmt.Sprintf("%s.backup_%s", path, time.Now().Format("20060102_150405"))
	result, err := s.Sudo(ctx, "cp", path, backupPath)
	if err != nil {
		return "", err
	}
	if !result.OK() {
		return "", fmt.Errorf("backing up %s: %s", path, strings.TrimSpace(result.Stderr))
	}
	return backupPath, nil
}

// PackageInstalled reports whether a dpkg package is in the installed state.
func (s *System) PackageInstalled(ctx context.Context, name string) bool {
	result, err := s.Run(ctx, "dpkg", "-l", name)
	return err == nil && result.OK() && strings.Contains(result.Stdout, "ii")
}

// Which reports whether a binary is resolvable in PATH.
func (s *System) Which(ctx context.Context, name string) bool {
	result, err := s.Run(ctx, "which", name)
	return err == nil && result.OK()
}

// Apt runs an apt command noninteractively, retrying a few times when the
// package database is locked by another process. An interrupted dpkg state
// is repaired with "dpkg --configure -a" before retrying.
func (s *System) Apt(ctx context.Context, args ...string) (Result, error) {
	argv := append([]string{"DEBIAN_FRONTEND=noninteractive", "apt"}, args...)
	name := "env"
	if s.sudo {
		name = "sudo"
	}
	var result Result
	var err error
	for attempt := 0; attempt < aptLockRetries; attempt++ {
		if attempt > 0 {
			log.Printf("apt retry %d/%d", attempt+1, aptLockRetries)
			s.repairDpkg(ctx)
			s.sleep(aptLockRetryWait)
		}
		result, err = s.runner.Run(ctx, "", name, argv...)
		if err != nil {
			return result, err
		}
		if !aptLocked(result.Stderr) {
			return result, nil
		}
		log.Printf("apt is locked by another process")
	}
	return result, fmt.Errorf("apt is locked: %s", strings.TrimSpace(result.Stderr))
}

func (s *System) repairDpkg(ctx context.Context) {
	result, err := s.Sudo(ctx, "dpkg", "--configure", "-a")
	if err != nil || !result.OK() {
		log.Printf("dpkg --configure -a did not complete cleanly")
	}
}

func aptLocked(stderr string) bool {
	return strings.Contains(stderr, "Could not get lock") ||
		strings.Contains(stderr, "dpkg was interrupted")
}
