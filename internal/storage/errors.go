package storage

import (
	"errors"
	"fmt"
	"syscall"
)

// Sentinel errors for errors.Is classification. Every WriteError/ReadError/
// IndexRestoreError matches exactly one of these via its Is method, so
// callers can check the failure family without switching on Stage.
var (
	ErrStoreFailed        = errors.New("storage: store failed")
	ErrLoadFailed         = errors.New("storage: load failed")
	ErrIndexRestoreFailed = errors.New("storage: index restore failed")
)

// WriteError classifies a store failure by stage and a stage-specific
// code (spec §4.2, §6, §7): an I/O status for open/write-phase failures,
// or the actual short byte count for *_SIZE stages.
type WriteError struct {
	Stage WriteStage
	Code  uint32
	Err   error // underlying cause, if any; may be nil for pure size mismatches
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: stage=%s code=%d: %v", ErrStoreFailed, e.Stage, e.Code, e.Err)
}

// Unwrap lets errors.Is/As reach the underlying cause, if any.
func (e *WriteError) Unwrap() error { return e.Err }

// Is reports whether target is the ErrStoreFailed sentinel, so callers can
// write errors.Is(err, storage.ErrStoreFailed) without switching on Stage.
func (e *WriteError) Is(target error) bool { return target == ErrStoreFailed }

// ReadError classifies a load failure by stage and a stage-specific code:
// an I/O status, a short byte count, or (DELIMITER_CONTENT) the offending
// byte value (spec §4.2, §6, §7).
type ReadError struct {
	Stage ReadStage
	Code  uint32
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s: stage=%s code=%d: %v", ErrLoadFailed, e.Stage, e.Code, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func (e *ReadError) Is(target error) bool { return target == ErrLoadFailed }

// IndexRestoreError classifies a startup-recovery failure (spec §4.3, §4.4.4).
type IndexRestoreError struct {
	Stage RestoreStage
	Code  uint32
	Err   error
}

func (e *IndexRestoreError) Error() string {
	return fmt.Sprintf("%s: stage=%s code=%d: %v", ErrIndexRestoreFailed, e.Stage, e.Code, e.Err)
}

func (e *IndexRestoreError) Unwrap() error { return e.Err }

func (e *IndexRestoreError) Is(target error) bool { return target == ErrIndexRestoreFailed }

// ioStatusCode reduces err to a u32 "status" for telemetry, matching
// spec §4.2's "underlying I/O status" code choice. When err wraps a
// [syscall.Errno] (the common case for real filesystem failures — ENOSPC,
// EACCES, ENOENT, ...) that errno value is used directly, mirroring the
// numeric status codes the surrounding component framework (out of scope
// here) reports on its telemetry channel. Anything else collapses to
// statusUnknown rather than leaking a Go-specific representation onto the
// wire.
func ioStatusCode(err error) uint32 {
	if err == nil {
		return 0
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}

	return statusUnknown
}

// statusUnknown is the code used when a failure has no syscall.Errno to
// report (for example, an injected test error, or a non-OS error type).
const statusUnknown = 0xFFFFFFFF
