// Package keywords maps harness keyword names such as "Click Pointer Button"
// to HID and video-input operations. Names match case, space and underscore
// insensitively, and arguments arrive as strings from the daemon protocols.
package keywords

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bnema/waydriver/internal/hid"
	"github.com/bnema/waydriver/internal/logger"
	"github.com/bnema/waydriver/internal/videoinput"
	"github.com/bnema/waydriver/internal/wayland"
)

// ErrUnknownKeyword is returned by Run for names missing from the table.
var ErrUnknownKeyword = errors.New("unknown keyword")

// Runner executes keywords. Library, the ipc client and the ssh client all
// implement it.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (any, error)
}

type keyword struct {
	name    string
	args    []string // argument names, a trailing "..." is variadic
	summary string
	run     func(ctx context.Context, args []string) (any, error)
}

func (k keyword) variadic() bool {
	return len(k.args) > 0 && strings.HasSuffix(k.args[len(k.args)-1], "...")
}

func (k keyword) checkArgs(args []string) error {
	if k.variadic() {
		if want := len(k.args); len(args) < want {
			return wayland.Preconditionf("%s expects at least %d argument(s), got %d", k.name, want, len(args))
		}
		return nil
	}
	if len(args) != len(k.args) {
		return wayland.Preconditionf("%s expects %d argument(s), got %d", k.name, len(k.args), len(args))
	}
	return nil
}

// Info describes a keyword for help output.
type Info struct {
	Name    string
	Args    []string
	Summary string
}

// Library is the keyword table over one HID and one video input. Keywords
// run one at a time.
type Library struct {
	mu       sync.Mutex
	hid      *hid.HID
	video    *videoinput.VideoInput
	keywords map[string]keyword
}

// New builds the table. video may be nil when screen capture is not wanted.
func New(h *hid.HID, video *videoinput.VideoInput) *Library {
	l := &Library{hid: h, video: video, keywords: map[string]keyword{}}
	l.register()
	return l
}

// Normalize folds a keyword name: case, spaces and underscores are ignored.
func Normalize(name string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '_' {
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(name)))
}

func (l *Library) add(k keyword) {
	l.keywords[Normalize(k.name)] = k
}

// List describes every keyword without any devices behind them.
func List() []Info {
	return New(nil, nil).Keywords()
}

// Keywords lists the table sorted by name.
func (l *Library) Keywords() []Info {
	infos := make([]Info, 0, len(l.keywords))
	for _, k := range l.keywords {
		infos = append(infos, Info{Name: k.name, Args: k.args, Summary: k.summary})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Run executes the named keyword. The result is nil or a value structpb can
// encode.
func (l *Library) Run(ctx context.Context, name string, args ...string) (any, error) {
	k, ok := l.keywords[Normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyword, name)
	}
	if err := k.checkArgs(args); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	result, err := k.run(ctx, args)
	if err != nil {
		logger.Debugf("Keyword %q failed after %s: %v", k.name, time.Since(start), err)
		return nil, err
	}
	logger.Debugf("Keyword %q done in %s", k.name, time.Since(start))
	return result, nil
}

// Close releases the devices and stops the video input.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.hid.Close()
	if l.video != nil {
		err = errors.Join(err, l.video.Stop(context.Background()))
	}
	return err
}

func (l *Library) videoInput() (*videoinput.VideoInput, error) {
	if l.video == nil {
		return nil, wayland.Preconditionf("video input not configured")
	}
	return l.video, nil
}

func (l *Library) register() {
	l.add(keyword{
		name:    "Type String",
		args:    []string{"string"},
		summary: "Type a string with the virtual keyboard",
		run: func(ctx context.Context, args []string) (any, error) {
			return nil, l.hid.TypeString(ctx, args[0])
		},
	})
	l.add(keyword{
		name:    "Keys Combo",
		args:    []string{"keys..."},
		summary: "Press keys in order, then release them in reverse",
		run: func(ctx context.Context, args []string) (any, error) {
			return nil, l.hid.KeysCombo(ctx, args)
		},
	})
	l.add(keyword{
		name:    "Press Pointer Button",
		args:    []string{"button"},
		summary: "Press LEFT, MIDDLE or RIGHT",
		run: func(ctx context.Context, args []string) (any, error) {
			return nil, l.hid.PressPointerButton(ctx, args[0])
		},
	})
	l.add(keyword{
		name:    "Release Pointer Button",
		args:    []string{"button"},
		summary: "Release LEFT, MIDDLE or RIGHT",
		run: func(ctx context.Context, args []string) (any, error) {
			return nil, l.hid.ReleasePointerButton(ctx, args[0])
		},
	})
	l.add(keyword{
		name:    "Click Pointer Button",
		args:    []string{"button"},
		summary: "Press and release LEFT, MIDDLE or RIGHT",
		run: func(ctx context.Context, args []string) (any, error) {
			return nil, l.hid.ClickPointerButton(ctx, args[0])
		},
	})
	l.add(keyword{
		name:    "Release Pointer Buttons",
		summary: "Release every pointer button",
		run: func(ctx context.Context, args []string) (any, error) {
			return nil, l.hid.ReleasePointerButtons(ctx)
		},
	})
	l.add(keyword{
		name:    "Move Pointer To Proportional",
		args:    []string{"x", "y"},
		summary: "Move the pointer to fractions of the output size",
		run: func(ctx context.Context, args []string) (any, error) {
			x, y, err := floats(args[0], args[1])
			if err != nil {
				return nil, err
			}
			return nil, l.hid.MovePointerToProportional(ctx, x, y)
		},
	})
	l.add(keyword{
		name:    "Move Pointer To Absolute",
		args:    []string{"x", "y"},
		summary: "Move the pointer to output coordinates",
		run: func(ctx context.Context, args []string) (any, error) {
			x, y, err := ints(args[0], args[1])
			if err != nil {
				return nil, err
			}
			return nil, l.hid.MovePointerToAbsolute(ctx, x, y)
		},
	})
	l.add(keyword{
		name:    "Walk Pointer To Proportional",
		args:    []string{"x", "y", "step_distance", "delay"},
		summary: "Walk the pointer in steps of at most step_distance pixels, delay seconds apart",
		run: func(ctx context.Context, args []string) (any, error) {
			x, y, err := floats(args[0], args[1])
			if err != nil {
				return nil, err
			}
			step, delay, err := walkParams(args[2], args[3])
			if err != nil {
				return nil, err
			}
			return nil, l.hid.WalkPointerToProportional(ctx, x, y, step, delay)
		},
	})
	l.add(keyword{
		name:    "Walk Pointer To Absolute",
		args:    []string{"x", "y", "step_distance", "delay"},
		summary: "Walk the pointer to output coordinates",
		run: func(ctx context.Context, args []string) (any, error) {
			x, y, err := ints(args[0], args[1])
			if err != nil {
				return nil, err
			}
			step, delay, err := walkParams(args[2], args[3])
			if err != nil {
				return nil, err
			}
			return nil, l.hid.WalkPointerToAbsolute(ctx, x, y, step, delay)
		},
	})
	l.add(keyword{
		name:    "Get Display Size",
		summary: "Logical size of the pointer output as [width, height]",
		run: func(ctx context.Context, args []string) (any, error) {
			width, height, err := l.hid.DisplaySize(ctx)
			if err != nil {
				return nil, err
			}
			return []any{width, height}, nil
		},
	})
	l.add(keyword{
		name:    "Get Pointer Position",
		summary: "Last proportional pointer position as [x, y]",
		run: func(ctx context.Context, args []string) (any, error) {
			pos := l.hid.Position()
			return []any{pos.X, pos.Y}, nil
		},
	})
	l.add(keyword{
		name:    "Start Video Input",
		summary: "Connect the screen capture client",
		run: func(ctx context.Context, args []string) (any, error) {
			v, err := l.videoInput()
			if err != nil {
				return nil, err
			}
			return nil, v.Start(ctx)
		},
	})
	l.add(keyword{
		name:    "Stop Video Input",
		summary: "Disconnect the screen capture client",
		run: func(ctx context.Context, args []string) (any, error) {
			v, err := l.videoInput()
			if err != nil {
				return nil, err
			}
			return nil, v.Stop(ctx)
		},
	})
	l.add(keyword{
		name:    "Restart Video Input",
		summary: "Reconnect the screen capture client",
		run: func(ctx context.Context, args []string) (any, error) {
			v, err := l.videoInput()
			if err != nil {
				return nil, err
			}
			return nil, v.Restart(ctx)
		},
	})
	l.add(keyword{
		name:    "Grab Screenshot",
		summary: "Capture the output, returning its size and base64 PNG data",
		run: func(ctx context.Context, args []string) (any, error) {
			v, err := l.videoInput()
			if err != nil {
				return nil, err
			}
			img, err := v.GrabScreenshot(ctx)
			if err != nil {
				return nil, err
			}
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err != nil {
				return nil, fmt.Errorf("failed to encode screenshot: %w", err)
			}
			return map[string]any{
				"width":  img.Bounds().Dx(),
				"height": img.Bounds().Dy(),
				"png":    base64.StdEncoding.EncodeToString(buf.Bytes()),
			}, nil
		},
	})
	l.add(keyword{
		name:    "Save Screenshot",
		args:    []string{"path"},
		summary: "Capture the output and write it as PNG on the daemon host",
		run: func(ctx context.Context, args []string) (any, error) {
			v, err := l.videoInput()
			if err != nil {
				return nil, err
			}
			bounds, err := v.SaveScreenshot(ctx, args[0])
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"path":   args[0],
				"width":  bounds.Dx(),
				"height": bounds.Dy(),
			}, nil
		},
	})
}

func floats(xs, ys string) (float64, float64, error) {
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return 0, 0, wayland.Preconditionf("invalid x %q: %v", xs, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return 0, 0, wayland.Preconditionf("invalid y %q: %v", ys, err)
	}
	return x, y, nil
}

func ints(xs, ys string) (int, int, error) {
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return 0, 0, wayland.Preconditionf("invalid x %q: %v", xs, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return 0, 0, wayland.Preconditionf("invalid y %q: %v", ys, err)
	}
	return x, y, nil
}

// walkParams parses a step distance in pixels and a delay in seconds.
func walkParams(steps, delays string) (float64, time.Duration, error) {
	step, err := strconv.ParseFloat(strings.TrimSpace(steps), 64)
	if err != nil {
		return 0, 0, wayland.Preconditionf("invalid step_distance %q: %v", steps, err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(delays), 64)
	if err != nil || seconds < 0 {
		return 0, 0, wayland.Preconditionf("invalid delay %q", delays)
	}
	return step, time.Duration(seconds * float64(time.Second)), nil
}
