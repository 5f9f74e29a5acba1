// Package videoinput exposes screen capture as keyword operations.
package videoinput

import (
	"context"
	"fmt"
	"image"

	"github.com/bnema/waydriver/internal/logger"
	"github.com/bnema/waydriver/internal/screencopy"
)

// Capturer grabs frames from the compositor.
type Capturer interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	GrabScreenshot(ctx context.Context) (*image.NRGBA, error)
}

// VideoInput starts and stops a screen capture client and grabs frames
// through it.
type VideoInput struct {
	capturer Capturer
}

// New wraps capturer, usually a *screencopy.Client.
func New(capturer Capturer) *VideoInput {
	return &VideoInput{capturer: capturer}
}

// Start connects to the display. It is a no-op while connected.
func (v *VideoInput) Start(ctx context.Context) error {
	return v.capturer.Connect(ctx)
}

// Stop disconnects from the display.
func (v *VideoInput) Stop(ctx context.Context) error {
	return v.capturer.Disconnect(ctx)
}

// Restart disconnects and connects again, dropping the capture buffer.
func (v *VideoInput) Restart(ctx context.Context) error {
	if err := v.Stop(ctx); err != nil {
		logger.Debugf("Stopping video input before restart: %v", err)
	}
	return v.Start(ctx)
}

// GrabScreenshot starts the video input if needed and grabs a frame.
func (v *VideoInput) GrabScreenshot(ctx context.Context) (*image.NRGBA, error) {
	if err := v.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start video input: %w", err)
	}
	return v.capturer.GrabScreenshot(ctx)
}

// SaveScreenshot grabs a frame and writes it to path as PNG.
func (v *VideoInput) SaveScreenshot(ctx context.Context, path string) (image.Rectangle, error) {
	img, err := v.GrabScreenshot(ctx)
	if err != nil {
		return image.Rectangle{}, err
	}
	if err := screencopy.WritePNG(path, img); err != nil {
		return image.Rectangle{}, err
	}
	logger.Debugf("Saved %dx%d screenshot to %s", img.Bounds().Dx(), img.Bounds().Dy(), path)
	return img.Bounds(), nil
}
