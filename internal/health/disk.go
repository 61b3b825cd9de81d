// Package health implements the cheap pre-stage resource checks every stage
// runs before doing substantial work.
package health

import (
	"os"
	"strconv"

	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"

	"github.com/scanforge/scanforge/errors"
)

// DefaultMinimumFreeMB is the free-disk threshold below which a stage
// refuses to start. Database finalization and SARIF interpretation are
// disk-hungry; starting them on a nearly-full runner wastes the whole job.
const DefaultMinimumFreeMB = 1024

// EnvMinimumFreeMB overrides the threshold (in megabytes). Zero disables
// the check entirely.
const EnvMinimumFreeMB = "SCANFORGE_MINIMUM_DISK_SPACE_MB"

// CheckDiskSpace verifies the filesystem holding path has enough free space
// for the stage to proceed, and returns the measured free space so the
// stage can stamp it onto its status reports. An unreadable filesystem is
// not a failure: the check is advisory and must never abort a runner whose
// stat interface we simply don't understand (free space reads as 0 then).
func CheckDiskSpace(path string, log *zap.SugaredLogger) (freeMB int64, err error) {
	minFreeMB := int64(DefaultMinimumFreeMB)
	if raw := os.Getenv(EnvMinimumFreeMB); raw != "" {
		parsed, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			log.Warnw("Ignoring unparseable disk space threshold", "value", raw, "error", perr)
		} else {
			minFreeMB = parsed
		}
	}

	usage, err := disk.Usage(path)
	if err != nil {
		log.Warnw("Could not measure free disk space, skipping check", "path", path, "error", err)
		return 0, nil
	}
	freeMB = int64(usage.Free / (1024 * 1024))

	if minFreeMB <= 0 {
		return freeMB, nil
	}
	if freeMB < minFreeMB {
		return freeMB, errors.WithHintf(
			errors.Newf("insufficient disk space: %d MB free at %s, %d MB required", freeMB, path, minFreeMB),
			"Free up disk space on the runner, or lower %s.", EnvMinimumFreeMB,
		)
	}
	return freeMB, nil
}
