// Package staging implements the mmap-backed scratch region a persister job
// accumulates one batch's uncompressed bytes into before compressing and
// handing them to a rotator. A small ".info" sidecar file tracks the write
// cursor as 4 ASCII hex digits plus a trailing newline so a crash between
// writes doesn't lose track of how much of the region holds valid data. The
// region is opened read-write, since this side of the mapping only ever
// writes.
package staging

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/hiviewdfx/hilogd/internal/herrors"
)

const cursorWidth = 4 // 4 hex ASCII digits, so max capacity representable is 0xffff bytes per region.
const cursorRecordLen = cursorWidth + 1 // plus a trailing newline.

// Region is a fixed-capacity mmap window with an append cursor.
type Region struct {
	f          *os.File
	data       []byte
	capacity   int
	offset     int
	cursorPath string
	cursorFile *os.File
}

// Open mmaps (creating if necessary) a capacity-byte region at path, and
// recovers the write cursor from path+".info" if one exists and is
// in-range, so a restart resumes appending instead of overwriting
// already-staged bytes. recovered reports whether a nonzero cursor was
// recovered, so the caller can flush the already-staged bytes to the
// rotator immediately instead of leaving them to wait for the next idle
// timeout or overflow.
func Open(path string, capacity int) (region *Region, recovered bool, err error) {
	if capacity <= 0 || capacity > 0xffff {
		return nil, false, herrors.StagingMmapError(fmt.Sprintf("invalid staging capacity %d", capacity))
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, false, herrors.PersistFileOpenError(err.Error())
	}
	if err := f.Truncate(int64(capacity)); err != nil {
		f.Close()
		return nil, false, herrors.StagingMmapError(err.Error())
	}

	data, err := unix.Mmap(int(f.Fd()), 0, capacity, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, false, herrors.StagingMmapError(err.Error())
	}

	cursorPath := path + ".info"
	cursorFile, err := os.OpenFile(cursorPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		unix.Munmap(data)
		f.Close()
		return nil, false, herrors.PersistFileOpenError(err.Error())
	}

	r := &Region{
		f:          f,
		data:       data,
		capacity:   capacity,
		cursorPath: cursorPath,
		cursorFile: cursorFile,
	}
	r.offset = r.recoverCursor()
	return r, r.offset > 0, nil
}

func (r *Region) recoverCursor() int {
	buf := make([]byte, cursorRecordLen)
	n, err := r.cursorFile.ReadAt(buf, 0)
	if err != nil || n != cursorRecordLen {
		return 0
	}
	var off int
	if _, err := fmt.Sscanf(string(buf[:cursorWidth]), "%04x", &off); err != nil {
		return 0
	}
	if off < 0 || off > r.capacity {
		return 0
	}
	return off
}

func (r *Region) persistCursor() error {
	line := fmt.Sprintf("%0*x\n", cursorWidth, r.offset)
	if _, err := r.cursorFile.WriteAt([]byte(line), 0); err != nil {
		return err
	}
	return r.cursorFile.Sync()
}

// Write appends p to the region, returning herrors.StagingMmapError if it
// would overflow the fixed capacity. The cursor sidecar is updated and
// synced before Write returns.
func (r *Region) Write(p []byte) (int, error) {
	if r.offset+len(p) > r.capacity {
		return 0, herrors.StagingMmapError("staging region full")
	}
	copy(r.data[r.offset:], p)
	r.offset += len(p)
	if err := r.persistCursor(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Bytes returns the currently staged bytes, [0, offset).
func (r *Region) Bytes() []byte {
	return r.data[:r.offset]
}

// Len reports how many bytes are currently staged.
func (r *Region) Len() int {
	return r.offset
}

// Remaining reports how many more bytes fit before the region is full.
func (r *Region) Remaining() int {
	return r.capacity - r.offset
}

// Reset rewinds the cursor to the start of the region, ready for the next
// batch. It does not zero the mmap'd bytes; Bytes() is always bounded by
// the cursor, so stale bytes past it are never exposed.
func (r *Region) Reset() error {
	r.offset = 0
	return r.persistCursor()
}

// Close unmaps the region and closes both the backing file and the cursor
// sidecar.
func (r *Region) Close() error {
	err := unix.Munmap(r.data)
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	if cerr := r.cursorFile.Close(); err == nil {
		err = cerr
	}
	return err
}
