package protocols

import (
	"testing"

	"github.com/rajveermalviya/go-wayland/wayland/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(values ...uint32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		client.PutUint32(buf[4*i:], v)
	}
	return buf
}

func nameEvent(name string, declared uint32) []byte {
	padded := (len(name) + 1 + 3) &^ 3
	buf := make([]byte, 4+padded)
	client.PutUint32(buf[0:4], declared)
	copy(buf[4:], name)
	return buf
}

func TestProxiesImplementDispatcher(t *testing.T) {
	proxies := map[string]client.Proxy{
		"ScreencopyManager":      &ScreencopyManager{},
		"ScreencopyFrame":        &ScreencopyFrame{},
		"XdgOutputManager":       &XdgOutputManager{},
		"XdgOutput":              &XdgOutput{},
		"VirtualPointerManager":  &VirtualPointerManager{},
		"VirtualPointer":         &VirtualPointer{},
		"VirtualKeyboardManager": &VirtualKeyboardManager{},
		"VirtualKeyboard":        &VirtualKeyboard{},
	}

	for name, p := range proxies {
		t.Run(name, func(t *testing.T) {
			_, ok := p.(client.Dispatcher)
			assert.True(t, ok, "context dispatch needs Dispatch(uint32, int, []byte)")
		})
	}
}

func TestXdgOutputEvents(t *testing.T) {
	o := &XdgOutput{}
	var (
		pos  XdgOutputLogicalPositionEvent
		size XdgOutputLogicalSizeEvent
		name string
		done bool
	)
	o.SetLogicalPositionHandler(func(e XdgOutputLogicalPositionEvent) { pos = e })
	o.SetLogicalSizeHandler(func(e XdgOutputLogicalSizeEvent) { size = e })
	o.SetNameHandler(func(s string) { name = s })
	o.SetDoneHandler(func() { done = true })

	minus := int32(-1920)
	o.Dispatch(0, -1, words(uint32(minus), 0))
	o.Dispatch(1, -1, words(1280, 720))
	o.Dispatch(3, -1, nameEvent("DP-3", 5))
	o.Dispatch(2, -1, nil)

	assert.Equal(t, XdgOutputLogicalPositionEvent{X: -1920, Y: 0}, pos)
	assert.Equal(t, XdgOutputLogicalSizeEvent{Width: 1280, Height: 720}, size)
	assert.Equal(t, "DP-3", name)
	assert.True(t, done)
}

func TestXdgOutputMalformedName(t *testing.T) {
	o := &XdgOutput{}
	called := false
	o.SetNameHandler(func(string) { called = true })

	tests := []struct {
		name string
		data []byte
	}{
		{"length past end", nameEvent("DP-3", 64)},
		{"truncated header", []byte{1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotPanics(t, func() { o.Dispatch(3, -1, tt.data) })
		})
	}
	assert.False(t, called)

	// no terminating NUL inside the declared length
	data := nameEvent("HDMI", 4)
	require.NotPanics(t, func() { o.Dispatch(3, -1, data) })
	assert.True(t, called)
}

func TestScreencopyFrameEvents(t *testing.T) {
	f := &ScreencopyFrame{}
	var (
		buffer     ScreencopyFrameBufferEvent
		flags      uint32
		bufferDone bool
		ready      bool
	)
	f.SetBufferHandler(func(e ScreencopyFrameBufferEvent) { buffer = e })
	f.SetFlagsHandler(func(e ScreencopyFrameFlagsEvent) { flags = e.Flags })
	f.SetBufferDoneHandler(func() { bufferDone = true })
	f.SetReadyHandler(func(ScreencopyFrameReadyEvent) { ready = true })

	f.Dispatch(0, -1, words(1, 4, 2, 16))
	f.Dispatch(1, -1, words(1))
	f.Dispatch(6, -1, nil)
	f.Dispatch(2, -1, words(0, 1, 2))

	assert.Equal(t, ScreencopyFrameBufferEvent{Format: 1, Width: 4, Height: 2, Stride: 16}, buffer)
	assert.Equal(t, uint32(1), flags)
	assert.True(t, bufferDone)
	assert.True(t, ready)
}
