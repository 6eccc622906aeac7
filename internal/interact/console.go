package interact

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Console asks questions on a terminal.
type Console struct {
	out io.Writer
	in  io.Reader

	once  sync.Once
	lines chan string
	mu    sync.Mutex
}

// NewConsole returns a Console reading answers from in.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out}
}

func (c *Console) start() {
	c.once.Do(func() {
		c.lines = make(chan string)
		go func() {
			defer close(c.lines)
			sc := bufio.NewScanner(c.in)
			sc.Buffer(make([]byte, 64*1024), 1024*1024)
			for sc.Scan() {
				c.lines <- sc.Text()
			}
		}()
	})
}

func (c *Console) readLine(ctx context.Context) (string, error) {
	select {
	case line, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Ask implements Asker.
func (c *Console) Ask(ctx context.Context, query string, opts Options) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start()

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, query)
	if cmd := opts.Command; cmd != nil {
		fmt.Fprintf(c.out, "  command: %s\n  cwd:     %s\n  type:    %s\n", cmd.Command, cmd.Cwd, cmd.Type)
		if cmd.Reason != "" {
			fmt.Fprintf(c.out, "  note:    %s\n", cmd.Reason)
		}
		fmt.Fprintf(c.out, "  [1] allow once  [2] allow type %q  [3] allow exact  [4] reject\n", cmd.Type)
	}
	if opts.Multiline {
		fmt.Fprintln(c.out, "(finish with an empty line)")
	}
	fmt.Fprint(c.out, "> ")

	if !opts.Multiline {
		line, err := c.readLine(ctx)
		if err == io.EOF {
			return "", nil
		}
		return strings.TrimSpace(line), err
	}

	var lines []string
	for {
		line, err := c.readLine(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
