package captcha

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/kitbuilder587/yxml/internal/domain"
)

// Solver turns a challenge image URL into the text shown on it.
type Solver interface {
	Solve(ctx context.Context, imageURL string) (string, error)
}

// SolverFunc adapts an inline callback to Solver.
type SolverFunc func(ctx context.Context, imageURL string) (string, error)

func (f SolverFunc) Solve(ctx context.Context, imageURL string) (string, error) {
	return f(ctx, imageURL)
}

// DefaultPython is used to run *.py solvers.
const DefaultPython = "python3"

// ExecSolver runs an external program with the image URL as its only
// argument. Stdout is the answer on exit status 0, stderr is the error
// message otherwise.
type ExecSolver struct {
	path   string
	python string
}

func NewExecSolver(path string) (*ExecSolver, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSolver, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrInvalidSolver, path)
	}
	return &ExecSolver{path: path, python: DefaultPython}, nil
}

// WithPython задает интерпретатор для *.py скриптов.
func (s *ExecSolver) WithPython(python string) *ExecSolver {
	s.python = python
	return s
}

func (s *ExecSolver) Path() string { return s.path }

func (s *ExecSolver) Solve(ctx context.Context, imageURL string) (string, error) {
	name, args := s.path, []string{imageURL}
	if strings.HasSuffix(strings.ToLower(s.path), ".py") {
		name, args = s.python, []string{s.path, imageURL}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("solver %s failed: %w: %s", s.path, err, msg)
		}
		return "", fmt.Errorf("solver %s failed: %w", s.path, err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// PromptSolver показывает ссылку на картинку и читает ответ из in.
type PromptSolver struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPromptSolver(in io.Reader, out io.Writer) *PromptSolver {
	return &PromptSolver{in: bufio.NewReader(in), out: out}
}

func (s *PromptSolver) Solve(ctx context.Context, imageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(s.out, "captcha: %s\nanswer: ", imageURL)

	line, err := s.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read captcha answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}
