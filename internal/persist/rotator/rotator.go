// Package rotator implements the fixed-size family of numbered output
// files a persister job writes into, with rollover and a crash-recoverable
// sidecar index.
package rotator

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// anxillaryFileNamePrefix matches ANXILLARY_FILE_NAME's role in the
// original: the sidecar file that remembers which numbered slot is
// current survives a crash between Rotate() calls.
const anxillaryFileNamePrefix = ".hilog_rotator_"

// Rotator manages baseName.0.suffix .. baseName.(fileNum-1).suffix,
// rolling the oldest slot out and shifting the rest down once all slots are
// in use.
type Rotator struct {
	mu sync.Mutex

	baseName string
	suffix   string
	fileSize uint32
	fileNum  uint32
	id       uint32

	index      int
	needRotate bool

	out     *os.File
	sidecar *os.File
}

// New builds a Rotator for baseName.N.suffix, N in [0,fileNum). id
// distinguishes this rotator's sidecar file from any sibling persister
// job's, since two jobs never share an output path (the dispatcher
// enforces uniqueness on id and path).
func New(baseName string, fileSize, fileNum uint32, suffix string, id uint32) *Rotator {
	return &Rotator{
		baseName:   baseName,
		suffix:     suffix,
		fileSize:   fileSize,
		fileNum:    fileNum,
		id:         id,
		index:      -1,
		needRotate: true,
	}
}

// SetIndex overrides the current slot index, used when resuming a
// previously rotated family without starting a fresh rollover.
func (r *Rotator) SetIndex(idx int) {
	r.mu.Lock()
	r.index = idx
	r.mu.Unlock()
}

// SetId overrides the sidecar-disambiguating id; must be called before Init.
func (r *Rotator) SetId(id uint32) {
	r.id = id
}

// Init opens (creating if necessary) the sidecar index file and recovers
// the last-written slot index from it, so a restart after a crash resumes
// rotation instead of starting the family over from slot 0.
func (r *Rotator) Init() error {
	dir := filepath.Dir(r.baseName)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	sidecarPath := filepath.Join(dir, fmt.Sprintf("%s%d.info", anxillaryFileNamePrefix, r.id))
	f, err := os.OpenFile(sidecarPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	r.sidecar = f

	var buf [1]byte
	if n, _ := f.ReadAt(buf[:], 0); n == 1 {
		r.index = int(int8(buf[0]))
	}
	return nil
}

// Close releases the sidecar and current output file handles.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.out != nil {
		err = r.out.Close()
	}
	if r.sidecar != nil {
		if cerr := r.sidecar.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Input writes buf to the current slot, rotating to a fresh slot first if
// FinishInput was called since the last Input.
func (r *Rotator) Input(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.needRotate {
		if r.out != nil {
			r.out.Close()
			r.out = nil
		}
		if err := r.rotate(); err != nil {
			return err
		}
		r.needRotate = false
	}

	_, err := r.out.Write(buf)
	return err
}

// FinishInput marks the current slot done; the next Input starts a new one.
func (r *Rotator) FinishInput() {
	r.mu.Lock()
	r.needRotate = true
	r.mu.Unlock()
}

// FillInfo reports the configured per-file size limit and slot count.
func (r *Rotator) FillInfo() (fileSize, fileNum uint32) {
	return r.fileSize, r.fileNum
}

func (r *Rotator) filePath(idx int) string {
	return fmt.Sprintf("%s.%d%s", r.baseName, idx, r.suffix)
}

func (r *Rotator) rotate() error {
	if r.index >= int(r.fileNum)-1 {
		return r.internalRotate()
	}
	r.index++
	f, err := os.OpenFile(r.filePath(r.index), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	r.out = f
	return r.writeIndex()
}

// internalRotate drops the oldest slot and renames the rest down by one,
// then opens a fresh top slot, matching InternalRotate's rollover.
func (r *Rotator) internalRotate() error {
	os.Remove(r.filePath(0))
	for i := 1; i < int(r.fileNum); i++ {
		os.Rename(r.filePath(i), r.filePath(i-1))
	}
	r.index = int(r.fileNum) - 1

	f, err := os.OpenFile(r.filePath(r.index), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	r.out = f
	return r.writeIndex()
}

func (r *Rotator) writeIndex() error {
	if r.sidecar == nil {
		return nil
	}
	if _, err := r.sidecar.WriteAt([]byte{byte(int8(r.index))}, 0); err != nil {
		return err
	}
	return r.sidecar.Sync()
}
