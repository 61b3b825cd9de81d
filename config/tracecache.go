package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/scanforge/scanforge/errors"
)

const traceCacheFileName = "trace-caches.json"

// TraceCachePath is the side-channel document where autobuild records the
// dependency caches the build produced. It is deliberately separate from
// the config snapshot: the snapshot is written once by init and immutable
// for the rest of the job, so a later stage with something to hand forward
// gets its own single-writer file instead.
func TraceCachePath() string {
	return filepath.Join(TempDir(), traceCacheFileName)
}

// PersistTraceCaches writes the per-language cache descriptors. Only the
// autobuild stage writes this file.
func PersistTraceCaches(caches map[Language]TraceCacheDescriptor) error {
	data, err := json.MarshalIndent(caches, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling trace cache descriptors")
	}
	return writeFileAtomic(TraceCachePath(), data)
}

// LoadTraceCaches reads the descriptors autobuild recorded. A missing file
// means no caches were produced, which is the common case for non-traced
// jobs: not an error.
func LoadTraceCaches() (map[Language]TraceCacheDescriptor, error) {
	data, err := os.ReadFile(TraceCachePath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading trace cache descriptors")
	}
	var caches map[Language]TraceCacheDescriptor
	if err := json.Unmarshal(data, &caches); err != nil {
		return nil, errors.Wrap(err, "parsing trace cache descriptors")
	}
	return caches, nil
}
