package videoinput

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/bnema/waydriver/internal/screencopy"
	"github.com/bnema/waydriver/internal/wltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVideoInput(t *testing.T) (*VideoInput, *wltest.Server) {
	t.Helper()
	srv := wltest.New(t,
		wltest.Global{Interface: "wl_shm", Version: 1},
		wltest.Global{Interface: "wl_output", Version: 4},
		wltest.Global{Interface: "zwlr_screencopy_manager_v1", Version: 3},
	)
	client := screencopy.New(srv.Path())
	t.Cleanup(func() { _ = client.Close() })
	return New(client), srv
}

func TestGrabScreenshotStartsVideoInput(t *testing.T) {
	v, srv := newVideoInput(t)

	img, err := v.GrabScreenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 2), img.Bounds())

	_, err = v.GrabScreenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Count("wl_display", "get_registry"), "second grab reuses the connection")
}

func TestRestartAllocatesNewBuffer(t *testing.T) {
	v, srv := newVideoInput(t)
	ctx := context.Background()

	_, err := v.GrabScreenshot(ctx)
	require.NoError(t, err)
	require.NoError(t, v.Restart(ctx))
	_, err = v.GrabScreenshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, srv.Count("wl_display", "get_registry"))
	assert.Equal(t, 2, srv.Count("wl_shm", "create_pool"))
}

func TestStopThenStart(t *testing.T) {
	v, srv := newVideoInput(t)
	ctx := context.Background()

	require.NoError(t, v.Start(ctx))
	require.NoError(t, v.Start(ctx))
	require.NoError(t, v.Stop(ctx))
	require.NoError(t, v.Stop(ctx))

	assert.Equal(t, 1, srv.Count("wl_display", "get_registry"))
}

func TestSaveScreenshot(t *testing.T) {
	v, _ := newVideoInput(t)
	path := filepath.Join(t.TempDir(), "screen.png")

	bounds, err := v.SaveScreenshot(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 2), bounds)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	r, g, b, a := img.At(0, 0).RGBA()
	assert.Equal(t, []uint32{0x3030, 0x2020, 0x1010, 0xffff}, []uint32{r, g, b, a})
}

func TestGrabScreenshotWithoutCompositor(t *testing.T) {
	client := screencopy.New(filepath.Join(t.TempDir(), "missing"))
	v := New(client)

	_, err := v.GrabScreenshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start video input")
}
