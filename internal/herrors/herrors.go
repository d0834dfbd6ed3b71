// Package herrors defines the daemon's surfaced error types, one named
// string type per failure mode. Each Error call prefixes the message with
// the file:line of the code that called Error and logs the result.
package herrors

import (
	"fmt"
	"runtime"

	"github.com/hiviewdfx/hilogd/internal/log"
)

// CallerContext returns "file:line" for the caller `level` frames up from
// its own caller, used to stamp error messages with where they originated.
func CallerContext(level int) string {
	_, file, line, _ := runtime.Caller(1 + level)
	return fmt.Sprintf("%s:%d", file, line)
}

func report(msg string) string {
	full := CallerContext(2) + ": " + msg
	log.Error(full)
	return full
}

// PersisterCollisionError is returned when Init is called with a job id or
// output path already owned by a live persister.
type PersisterCollisionError string

func (e PersisterCollisionError) Error() string {
	return report(string(e) + ": persister id or path already in use")
}

// StagingMmapError is returned by the staging package when a region cannot
// be set up (invalid capacity, backing file cannot be sized, mmap fails),
// in which case the job is never registered, and by Region.Write when an
// append does not fit in the region.
type StagingMmapError string

func (e StagingMmapError) Error() string {
	return report(string(e) + ": failed to mmap staging region")
}

// PersistFileOpenError is returned when the staging backing file or its
// sidecar cannot be opened.
type PersistFileOpenError string

func (e PersistFileOpenError) Error() string {
	return report(string(e) + ": failed to open persist file")
}

// PersistPathError is returned for a malformed output path (no directory
// component, or the directory could not be created).
type PersistPathError string

func (e PersistPathError) Error() string {
	return report(string(e) + ": invalid persist file path")
}

// CompressorInitError is returned when a compressor variant fails to
// initialize (e.g. an unknown algorithm id).
type CompressorInitError string

func (e CompressorInitError) Error() string {
	return report(string(e) + ": compressor init failed")
}

// RotatorError wraps failures rotating or opening an output file.
type RotatorError string

func (e RotatorError) Error() string {
	return report(string(e) + ": rotator failure")
}

// InvalidQueryError names a malformed QueryCondition (too many
// pids/domains/tags, or an unknown type/level bit). No code path in this
// module returns it.
type InvalidQueryError string

func (e InvalidQueryError) Error() string {
	return report(string(e) + ": invalid query condition")
}
