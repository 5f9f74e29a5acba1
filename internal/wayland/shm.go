package wayland

import (
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

var memfdCounter atomic.Uint64

// Memfd creates an anonymous memory file with a process-unique name.
func Memfd() (int, error) {
	n := memfdCounter.Add(1)
	name := fmt.Sprintf("/waydriver-%d-%d", os.Getpid(), n)
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return -1, fmt.Errorf("failed to create memfd %s: %w", name, err)
	}
	return fd, nil
}

// ShmRegion is a shared memory mapping handed to the compositor.
type ShmRegion struct {
	data []byte
}

// MapShm sizes fd to size bytes and maps it shared read/write.
func MapShm(fd int, size int) (*ShmRegion, error) {
	if size <= 0 {
		return nil, Preconditionf("invalid shared memory size %d", size)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, fmt.Errorf("failed to size shared memory: %w", err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to map shared memory: %w", err)
	}
	return &ShmRegion{data: data}, nil
}

// Bytes returns the mapped memory, nil once released.
func (r *ShmRegion) Bytes() []byte {
	if r == nil {
		return nil
	}
	return r.data
}

// Release unmaps the region. Only the first call has an effect.
func (r *ShmRegion) Release() error {
	if r == nil || r.data == nil {
		return nil
	}
	data := r.data
	r.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("failed to unmap shared memory: %w", err)
	}
	return nil
}

// WriteMemfd copies data into a new memfd and returns it rewound to the start.
func WriteMemfd(data []byte) (int, error) {
	fd, err := Memfd()
	if err != nil {
		return -1, err
	}
	for written := 0; written < len(data); {
		n, err := unix.Write(fd, data[written:])
		if err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("failed to write memfd: %w", err)
		}
		written += n
	}
	if _, err := unix.Seek(fd, 0, 0); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("failed to rewind memfd: %w", err)
	}
	return fd, nil
}
