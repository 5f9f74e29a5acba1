// Package screencopy grabs still frames of an output through the
// zwlr_screencopy_manager_v1 extension.
package screencopy

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/bnema/waydriver/internal/logger"
	"github.com/bnema/waydriver/internal/protocols"
	"github.com/bnema/waydriver/internal/wayland"
	"github.com/rajveermalviya/go-wayland/wayland/client"
	"golang.org/x/sys/unix"
)

// Locally supported versions
const (
	shmVersion     = 1
	outputVersion  = 4
	managerVersion = 3
)

// wl_shm formats
const (
	FormatARGB8888 = 0
	FormatXRGB8888 = 1
)

// ErrBufferMismatch is returned when the compositor asks for a buffer that
// differs from the one already allocated.
var ErrBufferMismatch = errors.New("buffer descriptor mismatch")

// BufferDescriptor describes the shm buffer a frame is copied into.
type BufferDescriptor struct {
	Format uint32
	Width  uint32
	Height uint32
	Stride uint32
}

// Size is the buffer size in bytes.
func (d BufferDescriptor) Size() int {
	return int(d.Height) * int(d.Stride)
}

type captureState int

const (
	stateRequested captureState = iota
	stateNegotiated
	stateReady
)

// capture is the progress of one GrabScreenshot call.
type capture struct {
	state captureState
	err   error
}

// Client captures the first output of the compositor.
type Client struct {
	*wayland.Client

	// OverlayCursor includes the cursor in captured frames.
	OverlayCursor bool

	shm     *client.Shm
	output  *client.Output
	manager *protocols.ScreencopyManager

	frame  *protocols.ScreencopyFrame
	region *wayland.ShmRegion
	buffer *client.Buffer
	desc   BufferDescriptor
}

// New creates a screencopy client for displayName.
func New(displayName string) *Client {
	c := &Client{}
	c.Client = wayland.New(displayName, c)
	return c
}

// BindGlobal binds wl_shm, the first wl_output and the screencopy manager.
func (c *Client) BindGlobal(g wayland.Global) error {
	switch g.Interface {
	case "wl_shm":
		c.shm = client.NewShm(c.Context())
		_, err := c.Bind(g, c.shm, shmVersion)
		return err
	case "wl_output":
		if c.output != nil {
			return nil
		}
		c.output = client.NewOutput(c.Context())
		_, err := c.Bind(g, c.output, outputVersion)
		return err
	case protocols.ScreencopyManagerInterface:
		c.manager = protocols.NewScreencopyManager(c.Context())
		version, err := c.Bind(g, c.manager, managerVersion)
		c.manager.Version = version
		return err
	}
	return nil
}

// Connected has nothing to set up: buffers are negotiated per capture.
func (c *Client) Connected(ctx context.Context) error {
	return nil
}

// Disconnected releases the shared memory region.
func (c *Client) Disconnected() {
	if c.region != nil {
		if err := c.region.Release(); err != nil {
			logger.Warnf("Failed to release screencopy buffer: %v", err)
		}
		c.region = nil
	}
	c.shm = nil
	c.output = nil
	c.manager = nil
	c.frame = nil
	c.buffer = nil
	c.desc = BufferDescriptor{}
}

// GrabScreenshot copies the current output contents into a new image.
func (c *Client) GrabScreenshot(ctx context.Context) (*image.NRGBA, error) {
	if err := c.Check(); err != nil {
		return nil, err
	}
	if c.manager == nil {
		return nil, wayland.Preconditionf("%s not supported", protocols.ScreencopyManagerInterface)
	}
	if c.output == nil {
		return nil, wayland.Preconditionf("no wl_output to capture")
	}

	// frame handles are single use
	if c.frame != nil {
		if err := c.Request(c.frame.Destroy()); err != nil {
			return nil, err
		}
		c.frame = nil
	}

	frame, err := c.manager.CaptureOutput(c.OverlayCursor, c.output)
	if err != nil {
		return nil, c.Request(fmt.Errorf("failed to request capture: %w", err))
	}
	c.frame = frame

	grab := &capture{state: stateRequested}
	frame.SetBufferHandler(func(e protocols.ScreencopyFrameBufferEvent) {
		c.negotiate(frame, grab, BufferDescriptor{Format: e.Format, Width: e.Width, Height: e.Height, Stride: e.Stride})
	})
	frame.SetBufferDoneHandler(func() {
		if frame.Version >= 3 {
			c.copyFrame(frame, grab)
		}
	})
	frame.SetReadyHandler(func(protocols.ScreencopyFrameReadyEvent) {
		if grab.err == nil {
			grab.state = stateReady
		}
	})
	frame.SetFailedHandler(func() {
		if grab.err == nil {
			grab.err = fmt.Errorf("compositor failed to copy the frame")
		}
	})

	for grab.state != stateReady && grab.err == nil {
		if err := c.Dispatch(ctx); err != nil {
			return nil, err
		}
	}
	if grab.err != nil {
		return nil, grab.err
	}

	return decode(c.region.Bytes(), c.desc)
}

// negotiate handles the buffer event: the first one allocates the shared
// buffer, later ones must describe the same buffer.
func (c *Client) negotiate(frame *protocols.ScreencopyFrame, grab *capture, desc BufferDescriptor) {
	if grab.err != nil {
		return
	}

	if c.buffer == nil {
		if err := c.allocate(desc); err != nil {
			grab.err = err
			return
		}
	} else if desc != c.desc {
		if desc.Size() != c.desc.Size() {
			grab.err = fmt.Errorf("%w: %w: Buffer size changed (%d -> %d bytes)", wayland.ErrPrecondition, ErrBufferMismatch, c.desc.Size(), desc.Size())
		} else {
			grab.err = fmt.Errorf("%w: %w: Buffer parameters changed (%+v -> %+v)", wayland.ErrPrecondition, ErrBufferMismatch, c.desc, desc)
		}
		return
	}

	grab.state = stateNegotiated
	if frame.Version < 3 {
		c.copyFrame(frame, grab)
	}
}

func (c *Client) copyFrame(frame *protocols.ScreencopyFrame, grab *capture) {
	if grab.err != nil || grab.state != stateNegotiated {
		return
	}
	if err := frame.Copy(c.buffer); err != nil {
		grab.err = c.Request(fmt.Errorf("failed to request frame copy: %w", err))
	}
}

// allocate creates the memfd, the mapping and the compositor buffer. The pool
// and the fd are not needed once the buffer exists.
func (c *Client) allocate(desc BufferDescriptor) error {
	if c.shm == nil {
		return wayland.Preconditionf("wl_shm not supported")
	}
	size := desc.Size()
	if size <= 0 {
		return wayland.Preconditionf("Not enough image data: %dx%d stride %d", desc.Width, desc.Height, desc.Stride)
	}

	fd, err := wayland.Memfd()
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	region, err := wayland.MapShm(fd, size)
	if err != nil {
		return err
	}

	pool, err := c.shm.CreatePool(fd, int32(size))
	if err != nil {
		_ = region.Release()
		return c.Request(fmt.Errorf("failed to create shm pool: %w", err))
	}
	buffer, err := pool.CreateBuffer(0, int32(desc.Width), int32(desc.Height), int32(desc.Stride), desc.Format)
	if err != nil {
		_ = region.Release()
		return c.Request(fmt.Errorf("failed to create buffer: %w", err))
	}
	if err := pool.Destroy(); err != nil {
		_ = region.Release()
		return c.Request(fmt.Errorf("failed to destroy shm pool: %w", err))
	}

	c.region = region
	c.buffer = buffer
	c.desc = desc
	logger.Debugf("Allocated screencopy buffer %dx%d stride %d format %d", desc.Width, desc.Height, desc.Stride, desc.Format)
	return nil
}

// decode converts rows of little-endian ARGB/XRGB pixels (B, G, R, A in
// memory) stored bottom-up into a top-down RGBA image.
func decode(data []byte, desc BufferDescriptor) (*image.NRGBA, error) {
	width, height, stride := int(desc.Width), int(desc.Height), int(desc.Stride)
	if width <= 0 || height <= 0 || len(data) < desc.Size() || stride < width*4 {
		return nil, wayland.Preconditionf("Not enough image data")
	}

	opaque := desc.Format == FormatXRGB8888
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		src := data[(height-1-y)*stride:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			s := src[x*4 : x*4+4]
			d := dst[x*4 : x*4+4]
			d[0], d[1], d[2], d[3] = s[2], s[1], s[0], s[3]
			if opaque {
				d[3] = 0xff
			}
		}
	}
	return img, nil
}
