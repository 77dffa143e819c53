package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

type fakeHandler struct {
	previews int
	quits    int
	sizes    [][2]float64
	fail     bool
}

func (f *fakeHandler) Preview() { f.previews++ }
func (f *fakeHandler) Quit()    { f.quits++ }

func (f *fakeHandler) Resize(w, h float64) error {
	if f.fail {
		return errors.New("recorder not running")
	}
	f.sizes = append(f.sizes, [2]float64{w, h})
	return nil
}

func run(t *testing.T, h Handler, input string) string {
	t.Helper()
	var out bytes.Buffer
	c := New(h, &out, 640, 480)
	if err := c.Run(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return out.String()
}

func TestConsoleCommands(t *testing.T) {
	h := &fakeHandler{}
	out := run(t, h, "o\nh\n720\nw 1280\nq\no\n")

	if h.previews != 1 {
		t.Errorf("previews = %d, want 1 (commands after q are ignored)", h.previews)
	}
	if h.quits != 1 {
		t.Errorf("quits = %d", h.quits)
	}
	want := [][2]float64{{640, 720}, {1280, 720}}
	if len(h.sizes) != 2 || h.sizes[0] != want[0] || h.sizes[1] != want[1] {
		t.Errorf("sizes = %v, want %v", h.sizes, want)
	}
	if !strings.Contains(out, "Enter new height: ") {
		t.Errorf("missing prompt in %q", out)
	}
}

func TestConsoleInvalidInput(t *testing.T) {
	h := &fakeHandler{}
	out := run(t, h, "h\nabc\nw -5\nw NaN\nh +Inf\nx\n")

	if len(h.sizes) != 0 {
		t.Errorf("sizes = %v", h.sizes)
	}
	if strings.Count(out, "Invalid size") != 4 {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, `Unknown command "x"`) {
		t.Errorf("output = %q", out)
	}
}

func TestConsoleResizeFailureKeepsSize(t *testing.T) {
	h := &fakeHandler{fail: true}
	out := run(t, h, "H 720\n")
	if !strings.Contains(out, "Resize failed") {
		t.Errorf("output = %q", out)
	}

	h.fail = false
	var buf bytes.Buffer
	c := New(h, &buf, 640, 480)
	c.handle("h 720")
	c.handler.(*fakeHandler).fail = true
	c.handle("w 1280")
	if c.width != 640 || c.height != 720 {
		t.Errorf("size = %vx%v, want 640x720", c.width, c.height)
	}
}

func TestConsoleStopsOnCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(&fakeHandler{}, io.Discard, 640, 480).Run(ctx, r)
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("console did not return after cancel")
	}
}
