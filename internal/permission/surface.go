package permission

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Answer is the operator's response to a consent request.
type Answer int

const (
	// AnswerClose means the surface was dismissed without an answer.
	AnswerClose Answer = iota
	AnswerGrant
	AnswerRefuse
)

// Surface is the user-visible side of the gate.
type Surface interface {
	Show(msg string)
	// Request asks for consent. It may be called again after a refusal.
	Request(ctx context.Context) (Answer, error)
	// AwaitClose blocks until the operator dismisses the surface.
	AwaitClose(ctx context.Context) error
}

// Terminal is a Surface on a terminal. A non-interactive terminal behaves
// like a surface the operator closed straight away.
type Terminal struct {
	In          *bufio.Reader
	Out         io.Writer
	Interactive bool
}

// NewTerminal builds a surface on stdin/stdout.
func NewTerminal() *Terminal {
	return &Terminal{
		In:          bufio.NewReader(os.Stdin),
		Out:         os.Stdout,
		Interactive: isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()),
	}
}

func (t *Terminal) Show(msg string) {
	fmt.Fprintln(t.Out, msg)
}

func (t *Terminal) Request(ctx context.Context) (Answer, error) {
	if !t.Interactive {
		return AnswerClose, nil
	}
	fmt.Fprint(t.Out, "Allow mia to record your microphone? [y]es / [n]o / [q]uit: ")
	line, err := t.readLine(ctx)
	if err != nil {
		if err == io.EOF {
			return AnswerClose, nil
		}
		return AnswerClose, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return AnswerGrant, nil
	case "q", "quit":
		return AnswerClose, nil
	default:
		return AnswerRefuse, nil
	}
}

func (t *Terminal) AwaitClose(ctx context.Context) error {
	if !t.Interactive {
		return nil
	}
	fmt.Fprint(t.Out, "Press Enter to close. ")
	_, err := t.readLine(ctx)
	if err == io.EOF {
		return nil
	}
	return err
}

func (t *Terminal) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := t.In.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- result{line: line, err: err}
	}()
	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
