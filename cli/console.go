package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Console reads lines from the terminal for both the chat prompt and the
// ask_user tool, so the two never race for the same input.
type Console struct {
	out   io.Writer
	lines chan string
	done  chan struct{}

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
}

// NewConsole starts reading lines from in. The reader stops at EOF.
func NewConsole(in io.Reader, out io.Writer) *Console {
	c := &Console{
		out:   out,
		lines: make(chan string),
		done:  make(chan struct{}),
	}
	go c.read(in)
	return c
}

func (c *Console) read(in io.Reader) {
	defer close(c.lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case c.lines <- scanner.Text():
		case <-c.done:
			return
		}
	}
	c.mu.Lock()
	c.err = scanner.Err()
	c.mu.Unlock()
}

// ReadLine returns the next line, io.EOF when input ends, or ctx.Err().
func (c *Console) ReadLine(ctx context.Context) (string, error) {
	select {
	case line, ok := <-c.lines:
		if !ok {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.err != nil {
				return "", c.err
			}
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Prompt shows question and waits for an answer. It implements tools.Prompter.
func (c *Console) Prompt(ctx context.Context, question string) (string, error) {
	fmt.Fprint(c.out, question)
	line, err := c.ReadLine(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Close stops the reader once its pending line is consumed or dropped.
func (c *Console) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
