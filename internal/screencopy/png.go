package screencopy

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// SavePNG grabs a screenshot and writes it to path as PNG.
func (c *Client) SavePNG(ctx context.Context, path string) (*image.NRGBA, error) {
	img, err := c.GrabScreenshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := WritePNG(path, img); err != nil {
		return nil, err
	}
	return img, nil
}

// WritePNG encodes img to path, creating parent directories as needed.
func WritePNG(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return f.Close()
}
