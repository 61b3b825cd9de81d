// Package tools resolves which analysis engine bundle a job uses: an
// explicit bundle URL is downloaded, the "linked"/"latest" keywords ask
// the platform for its recommended bundle, and an empty input falls back
// to the engine already present on the runner image.
package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-getter"
	"go.uber.org/zap"

	"github.com/scanforge/scanforge/config"
	"github.com/scanforge/scanforge/errors"
	"github.com/scanforge/scanforge/pipeline"
	"github.com/scanforge/scanforge/platform"
)

const (
	// Keywords accepted in the tools input instead of a URL.
	KeywordLinked = "linked"
	KeywordLatest = "latest"

	// EnvEngineBinary overrides where the bundled engine is looked up.
	EnvEngineBinary = "SCANFORGE_ENGINE"

	engineBinaryName = "scanforge-engine"
	completeMarker   = ".complete"
)

// Resolution is the outcome of tool resolution, recorded into the config
// snapshot and the init status report.
type Resolution struct {
	BinaryPath string
	Version    string
	Source     config.ToolsSource
	URL        string

	// Download telemetry. Zero for bundled engines and cache hits.
	BytesDownloaded  int64
	DownloadDuration time.Duration
	CacheHit         bool
}

// BundleLocator answers what bundle the platform currently recommends.
type BundleLocator interface {
	DefaultTools(ctx context.Context) (*platform.ToolsInfo, error)
}

// VersionFunc reports the version string of an engine binary.
type VersionFunc func(ctx context.Context, binaryPath string) (string, error)

// Resolver resolves the tools input to a usable engine binary.
type Resolver struct {
	locator   BundleLocator
	versionOf VersionFunc
	cacheDir  string
	log       *zap.SugaredLogger
}

// NewResolver creates a Resolver. locator may be nil, in which case the
// "linked"/"latest" keywords are rejected as user errors.
func NewResolver(locator BundleLocator, versionOf VersionFunc, log *zap.SugaredLogger) *Resolver {
	return &Resolver{
		locator:   locator,
		versionOf: versionOf,
		cacheDir:  filepath.Join(config.TempDir(), "tools"),
		log:       log,
	}
}

// Resolve maps the tools input to an engine binary.
func (r *Resolver) Resolve(ctx context.Context, input string) (*Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "":
		return r.resolveBundled(ctx)
	case KeywordLinked, KeywordLatest:
		return r.resolveLinked(ctx)
	default:
		res, err := r.download(ctx, input)
		if err != nil {
			return nil, err
		}
		res.Source = config.ToolsSourceInput
		version, err := r.versionOf(ctx, res.BinaryPath)
		if err != nil {
			return nil, errors.Wrap(err, "determining downloaded engine version")
		}
		res.Version = version
		return res, nil
	}
}

// resolveBundled finds the engine already on the runner image: the
// override env var first, then PATH.
func (r *Resolver) resolveBundled(ctx context.Context) (*Resolution, error) {
	binary := os.Getenv(EnvEngineBinary)
	if binary != "" {
		if _, err := os.Stat(binary); err != nil {
			return nil, errors.Mark(errors.WithHintf(
				errors.Wrapf(err, "engine binary from %s not usable", EnvEngineBinary),
				"Unset %s or point it at an existing engine binary.", EnvEngineBinary,
			), pipeline.ErrUserError)
		}
	} else {
		found, err := exec.LookPath(engineBinaryName)
		if err != nil {
			return nil, errors.Mark(errors.WithHint(
				errors.Wrapf(err, "no bundled engine on this runner"),
				"Provide a tools URL, or use 'linked' to download the platform's recommended bundle.",
			), pipeline.ErrUserError)
		}
		binary = found
	}

	version, err := r.versionOf(ctx, binary)
	if err != nil {
		return nil, errors.Wrap(err, "determining bundled engine version")
	}
	r.log.Infow("Using bundled engine", "binary", binary, "version", version)
	return &Resolution{
		BinaryPath: binary,
		Version:    version,
		Source:     config.ToolsSourceBundled,
	}, nil
}

func (r *Resolver) resolveLinked(ctx context.Context) (*Resolution, error) {
	if r.locator == nil {
		return nil, pipeline.NewUserError(
			"tools 'linked'/'latest' requires platform access, but no API URL and token were provided")
	}
	info, err := r.locator.DefaultTools(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "looking up recommended engine bundle")
	}
	res, err := r.download(ctx, info.URL)
	if err != nil {
		return nil, err
	}
	res.Source = config.ToolsSourceDownload
	res.Version = info.Version
	if res.Version == "" {
		if res.Version, err = r.versionOf(ctx, res.BinaryPath); err != nil {
			return nil, errors.Wrap(err, "determining downloaded engine version")
		}
	}
	return res, nil
}

// download fetches the bundle at url into the per-URL cache directory and
// locates the engine binary inside it. A directory that finished a prior
// download is reused without touching the network.
func (r *Resolver) download(ctx context.Context, url string) (*Resolution, error) {
	sum := sha256.Sum256([]byte(url))
	dest := filepath.Join(r.cacheDir, hex.EncodeToString(sum[:8]))

	if _, err := os.Stat(filepath.Join(dest, completeMarker)); err == nil {
		binary, err := findEngineBinary(dest)
		if err != nil {
			return nil, err
		}
		r.log.Infow("Engine bundle cache hit", "url", url, "dir", dest)
		return &Resolution{BinaryPath: binary, URL: url, CacheHit: true}, nil
	}

	if err := os.MkdirAll(r.cacheDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating tools cache directory")
	}

	r.log.Infow("Downloading engine bundle", "url", url, "dir", dest)
	start := time.Now()
	client := &getter.Client{
		Ctx:     ctx,
		Src:     url,
		Dst:     dest,
		Mode:    getter.ClientModeDir,
		Getters: getter.Getters,
	}
	if err := client.Get(); err != nil {
		os.RemoveAll(dest)
		return nil, errors.Wrapf(err, "downloading engine bundle from %s", url)
	}
	elapsed := time.Since(start)

	size, err := dirSize(dest)
	if err != nil {
		return nil, errors.Wrap(err, "sizing downloaded bundle")
	}
	binary, err := findEngineBinary(dest)
	if err != nil {
		os.RemoveAll(dest)
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dest, completeMarker), nil, 0o644); err != nil {
		return nil, errors.Wrap(err, "marking bundle download complete")
	}

	r.log.Infow("Engine bundle downloaded",
		"url", url,
		"bytes", size,
		"duration", elapsed,
	)
	return &Resolution{
		BinaryPath:       binary,
		URL:              url,
		BytesDownloaded:  size,
		DownloadDuration: elapsed,
	}, nil
}

// findEngineBinary locates the engine executable inside an unpacked bundle.
func findEngineBinary(dir string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != engineBinaryName {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode()&0o111 == 0 {
			return nil
		}
		found = path
		return fs.SkipAll
	})
	if err != nil {
		return "", errors.Wrap(err, "scanning bundle for engine binary")
	}
	if found == "" {
		return "", errors.Newf("bundle at %s contains no executable named %s", dir, engineBinaryName)
	}
	return found, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
