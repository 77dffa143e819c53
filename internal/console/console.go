// Package console implements the interactive keyboard commands of a
// recording session: o opens the preview window, q quits, h and w change the
// capture height and width.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"camclip/pkg/models"
)

// Handler executes console commands
type Handler interface {
	Preview()
	Quit()
	Resize(width, height float64) error
}

const help = `Commands:
  o        open the live preview window
  q        stop recording and quit
  h [px]   set the capture height
  w [px]   set the capture width
`

// Console reads commands line by line
type Console struct {
	handler Handler
	out     io.Writer
	width   float64
	height  float64

	pending byte // 'h' or 'w' while waiting for a value
}

// New creates a console. width and height are the initial capture size,
// used to fill in the dimension a command does not change.
func New(h Handler, out io.Writer, width, height float64) *Console {
	return &Console{handler: h, out: out, width: width, height: height}
}

// Run processes commands from r until q, end of input or ctx is done
func (c *Console) Run(ctx context.Context, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- sc.Err()
	}()

	fmt.Fprint(c.out, help)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errCh:
					return err
				default:
					return nil
				}
			}
			if c.handle(strings.TrimSpace(line)) {
				return nil
			}
		}
	}
}

// handle runs one command and reports whether the console should exit
func (c *Console) handle(line string) bool {
	if c.pending != 0 {
		dim := c.pending
		c.pending = 0
		c.resize(dim, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	switch strings.ToLower(cmd) {
	case "":
	case "o":
		c.handler.Preview()
	case "q":
		c.handler.Quit()
		return true
	case "h", "w":
		if arg = strings.TrimSpace(arg); arg != "" {
			c.resize(cmd[0]|0x20, arg)
			return false
		}
		c.pending = cmd[0] | 0x20
		if c.pending == 'h' {
			fmt.Fprint(c.out, "Enter new height: ")
		} else {
			fmt.Fprint(c.out, "Enter new width: ")
		}
	default:
		fmt.Fprintf(c.out, "Unknown command %q\n", cmd)
		fmt.Fprint(c.out, help)
	}
	return false
}

func (c *Console) resize(dim byte, value string) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || !models.ValidDimension(v) {
		fmt.Fprintf(c.out, "Invalid size %q\n", value)
		return
	}

	width, height := c.width, c.height
	if dim == 'h' {
		height = v
	} else {
		width = v
	}

	if err := c.handler.Resize(width, height); err != nil {
		fmt.Fprintf(c.out, "Resize failed: %v\n", err)
		return
	}
	c.width, c.height = width, height
	fmt.Fprintf(c.out, "Capture size set to %vx%v\n", width, height)
}
