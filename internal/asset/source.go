package asset

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Error types
var (
	ErrBundleNotFound = errors.New("bundle not found")
	ErrAssetNotFound  = errors.New("asset not found")
	ErrInvalidPath    = errors.New("invalid asset path")
)

// imageExts lists the file extensions a DirSource treats as images.
var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// Info describes a decoded image.
type Info struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	// Bytes is the decoded RGBA size, which is what a resident texture costs.
	Bytes int64 `json:"bytes"`
}

// Source lists and opens the assets of an asset root.
type Source interface {
	// Bundles returns the bundle names in sorted order.
	Bundles(ctx context.Context) ([]string, error)
	// List returns the asset paths of a bundle in sorted order.
	List(ctx context.Context, bundle string) ([]string, error)
	// Open decodes the asset at path inside bundle.
	Open(ctx context.Context, bundle, path string) (Info, error)
}

// DirSource serves bundles from a directory tree: every subdirectory of the
// root directory is a bundle and every image below it is an asset.
type DirSource struct {
	fsys fs.FS
}

// NewDirSource returns a Source reading from root.
func NewDirSource(root string) (*DirSource, error) {
	st, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("asset root %s: %w", root, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("asset root %s is not a directory", root)
	}
	return &DirSource{fsys: os.DirFS(root)}, nil
}

func (s *DirSource) Bundles(ctx context.Context) ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read asset root: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func (s *DirSource) List(ctx context.Context, bundle string) ([]string, error) {
	if err := checkBundle(bundle); err != nil {
		return nil, err
	}
	if st, err := fs.Stat(s.fsys, bundle); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, bundle)
	}

	var out []string
	err := fs.WalkDir(s.fsys, bundle, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !imageExts[strings.ToLower(path.Ext(p))] {
			return nil
		}
		out = append(out, strings.TrimPrefix(p, bundle+"/"))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list bundle %s: %w", bundle, err)
	}
	sort.Strings(out)
	return out, nil
}

func (s *DirSource) Open(ctx context.Context, bundle, p string) (Info, error) {
	if err := checkBundle(bundle); err != nil {
		return Info{}, err
	}
	full := path.Join(bundle, p)
	if !fs.ValidPath(full) || !strings.HasPrefix(full, bundle+"/") {
		return Info{}, fmt.Errorf("%w: %s", ErrInvalidPath, p)
	}
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}

	f, err := s.fsys.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, fmt.Errorf("%w: %s", ErrAssetNotFound, full)
		}
		return Info{}, fmt.Errorf("failed to open %s: %w", full, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Info{}, fmt.Errorf("failed to decode %s: %w", full, err)
	}
	return Info{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: format,
		Bytes:  int64(cfg.Width) * int64(cfg.Height) * 4,
	}, nil
}

func checkBundle(bundle string) error {
	if bundle == "" || strings.ContainsAny(bundle, `/\`) || !fs.ValidPath(bundle) {
		return fmt.Errorf("%w: bundle %q", ErrInvalidPath, bundle)
	}
	return nil
}
