package storage

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/calvinalkan/spacepost/pkg/fs"
)

// recordNamePattern recognizes record filenames: a decimal index of up to
// maxFilenameDigits digits, followed by the configured extension (spec §4.3,
// §6: "^[0-9]{1,10}\.spaceposts$" for the default extension).
var recordNamePattern = regexp.MustCompile(`^[0-9]{1,10}` + regexp.QuoteMeta(DefaultFileExt) + `$`)

// StorageDirectory is the filesystem layer: path construction, directory
// creation, listing, and filename parsing (spec §4.3). It holds no engine
// state of its own.
type StorageDirectory struct {
	fsys    fs.FS
	dir     string
	fileExt string
	pattern *regexp.Regexp
}

// NewStorageDirectory returns a StorageDirectory rooted at dir, recognizing
// files named "<digits><fileExt>".
func NewStorageDirectory(fsys fs.FS, dir, fileExt string) *StorageDirectory {
	pattern := recordNamePattern
	if fileExt != DefaultFileExt {
		pattern = regexp.MustCompile(`^[0-9]{1,` + strconv.Itoa(maxFilenameDigits) + `}` + regexp.QuoteMeta(fileExt) + `$`)
	}

	return &StorageDirectory{fsys: fsys, dir: dir, fileExt: fileExt, pattern: pattern}
}

// EnsureExistsResult reports the outcome of EnsureExists, for the
// STORAGE_DIRECTORY_WARNING event (spec §4.3). Existed is true only when
// the directory was already there and nothing had to be done; Created and
// Err are mutually exclusive and both imply a warning is due.
type EnsureExistsResult struct {
	Path    string
	Existed bool
	Created bool
	Err     error
}

// EnsureExists creates the storage directory if it doesn't already exist.
// Per spec §4.3 this never fails the caller's operation: any outcome other
// than "already existed" is reported back for the Engine to emit
// STORAGE_DIRECTORY_WARNING, but the directory is still used afterward on
// a best-effort basis.
func (d *StorageDirectory) EnsureExists() EnsureExistsResult {
	existed, err := d.fsys.Exists(d.dir)
	if err == nil && existed {
		return EnsureExistsResult{Path: d.dir, Existed: true}
	}

	if mkErr := d.fsys.MkdirAll(d.dir, 0o750); mkErr != nil {
		if err == nil {
			err = mkErr
		}

		return EnsureExistsResult{Path: d.dir, Err: err}
	}

	return EnsureExistsResult{Path: d.dir, Created: true}
}

// PathFor returns the deterministic path for a record at idx: "<dir>/<idx><ext>".
func (d *StorageDirectory) PathFor(idx uint32) string {
	return filepath.Join(d.dir, strconv.FormatUint(uint64(idx), 10)+d.fileExt)
}

// Enumerate lists every recognized record index in the directory, sorted
// ascending (spec §4.3). Entries that don't match the recognized filename
// pattern, or that do but fail to parse as a uint32, are silently ignored.
func (d *StorageDirectory) Enumerate() ([]uint32, error) {
	entries, err := d.fsys.ReadDir(d.dir)
	if err != nil {
		return nil, &IndexRestoreError{Stage: RestoreStageDirOpen, Code: ioStatusCode(err), Err: err}
	}

	indices := make([]uint32, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if !d.pattern.MatchString(name) {
			continue
		}

		stem := name[:len(name)-len(d.fileExt)]

		idx, err := strconv.ParseUint(stem, 10, 32)
		if err != nil {
			continue
		}

		indices = append(indices, uint32(idx))
	}

	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	return indices, nil
}

// Remove deletes path, used only for store-cleanup of a partial file
// (spec §4.4.1). Failure is returned for the caller to report; it is
// never itself a fatal condition.
func (d *StorageDirectory) Remove(path string) error {
	if err := d.fsys.Remove(path); err != nil {
		return fmt.Errorf("storage: remove %s: %w", path, err)
	}

	return nil
}
