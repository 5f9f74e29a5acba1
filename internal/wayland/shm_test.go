package wayland

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestMemfdNamesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		fd, err := Memfd()
		require.NoError(t, err)
		target, err := readlinkFd(fd)
		unix.Close(fd)
		require.NoError(t, err)
		assert.False(t, seen[target], "duplicate memfd name %s", target)
		assert.Contains(t, target, "waydriver-")
		seen[target] = true
	}
}

func readlinkFd(fd int) (string, error) {
	buf := make([]byte, 256)
	n, err := unix.Readlink("/proc/self/fd/"+strconv.Itoa(fd), buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

func TestShmRegionReleaseOnce(t *testing.T) {
	fd, err := Memfd()
	require.NoError(t, err)
	defer unix.Close(fd)

	region, err := MapShm(fd, 4096)
	require.NoError(t, err)
	require.Len(t, region.Bytes(), 4096)

	region.Bytes()[0] = 0xaa
	require.NoError(t, region.Release())
	assert.Nil(t, region.Bytes())
	assert.NoError(t, region.Release(), "second release is a no-op")
}

func TestMapShmRejectsEmptySize(t *testing.T) {
	fd, err := Memfd()
	require.NoError(t, err)
	defer unix.Close(fd)

	_, err = MapShm(fd, 0)
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestWriteMemfd(t *testing.T) {
	fd, err := WriteMemfd([]byte("xkb_keymap {};\x00"))
	require.NoError(t, err)
	defer unix.Close(fd)

	buf := make([]byte, 32)
	n, err := unix.Read(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, "xkb_keymap {};\x00", string(buf[:n]))
}
