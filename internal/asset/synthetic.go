package asset

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
)

// DefaultBundles are the bundles the item panel of the benchmark scene draws
// from.
var DefaultBundles = []string{"icon", "role", "wall"}

// SyntheticSource generates bundles of fake sprite frames. It needs no files
// on disk, which makes benchmark runs reproducible from a seed.
type SyntheticSource struct {
	bundles map[string][]string
	infos   map[string]Info
}

// NewSyntheticSource builds frames frames for each bundle. The same seed
// always yields the same frame names and sizes.
func NewSyntheticSource(seed uint64, bundles []string, frames int) *SyntheticSource {
	if len(bundles) == 0 {
		bundles = DefaultBundles
	}
	if frames < 1 {
		frames = 1
	}
	faker := gofakeit.New(seed)

	s := &SyntheticSource{
		bundles: make(map[string][]string, len(bundles)),
		infos:   make(map[string]Info),
	}
	for _, b := range bundles {
		names := make([]string, 0, frames)
		for i := 0; i < frames; i++ {
			name := fmt.Sprintf("%s_%s_%03d.png", b, strings.ToLower(faker.Animal()), i)
			w := faker.Number(16, 256)
			h := faker.Number(16, 256)
			names = append(names, name)
			s.infos[b+"/"+name] = Info{
				Width:  w,
				Height: h,
				Format: "png",
				Bytes:  int64(w) * int64(h) * 4,
			}
		}
		sort.Strings(names)
		s.bundles[b] = names
	}
	return s
}

func (s *SyntheticSource) Bundles(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(s.bundles))
	for b := range s.bundles {
		out = append(out, b)
	}
	sort.Strings(out)
	return out, nil
}

func (s *SyntheticSource) List(ctx context.Context, bundle string) ([]string, error) {
	names, ok := s.bundles[bundle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, bundle)
	}
	return append([]string(nil), names...), nil
}

func (s *SyntheticSource) Open(ctx context.Context, bundle, path string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	if _, ok := s.bundles[bundle]; !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrBundleNotFound, bundle)
	}
	info, ok := s.infos[bundle+"/"+path]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s/%s", ErrAssetNotFound, bundle, path)
	}
	return info, nil
}
