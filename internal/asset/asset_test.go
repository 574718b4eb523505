package asset

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

// writePNG creates a w x h PNG at root/rel.
func writePNG(t *testing.T, root, rel string, w, h int) {
	t.Helper()

	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(full)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
}

func createAssetRoot(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	writePNG(t, root, "icon/coin.png", 16, 16)
	writePNG(t, root, "icon/gem.png", 32, 8)
	writePNG(t, root, "role/walk/role_1_00.png", 64, 64)
	if err := os.WriteFile(filepath.Join(root, "icon", "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".cache"), 0755); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestDirSource(t *testing.T) {
	ctx := context.Background()
	src, err := NewDirSource(createAssetRoot(t))
	if err != nil {
		t.Fatalf("NewDirSource failed: %v", err)
	}

	bundles, err := src.Bundles(ctx)
	if err != nil {
		t.Fatalf("Bundles failed: %v", err)
	}
	if want := []string{"icon", "role"}; !reflect.DeepEqual(bundles, want) {
		t.Errorf("Bundles() = %v; want %v", bundles, want)
	}

	icons, err := src.List(ctx, "icon")
	if err != nil {
		t.Fatalf("List(icon) failed: %v", err)
	}
	if want := []string{"coin.png", "gem.png"}; !reflect.DeepEqual(icons, want) {
		t.Errorf("List(icon) = %v; want %v", icons, want)
	}

	roles, err := src.List(ctx, "role")
	if err != nil {
		t.Fatalf("List(role) failed: %v", err)
	}
	if want := []string{"walk/role_1_00.png"}; !reflect.DeepEqual(roles, want) {
		t.Errorf("List(role) = %v; want %v", roles, want)
	}

	info, err := src.Open(ctx, "icon", "gem.png")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if info.Width != 32 || info.Height != 8 || info.Format != "png" || info.Bytes != 32*8*4 {
		t.Errorf("Open(icon/gem.png) = %+v", info)
	}
}

func TestDirSourceErrors(t *testing.T) {
	ctx := context.Background()
	src, err := NewDirSource(createAssetRoot(t))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		bundle string
		path   string
		want   error
	}{
		{name: "missing bundle", bundle: "floor", path: "a.png", want: ErrAssetNotFound},
		{name: "missing asset", bundle: "icon", path: "nope.png", want: ErrAssetNotFound},
		{name: "escaping path", bundle: "icon", path: "../role/walk/role_1_00.png", want: ErrInvalidPath},
		{name: "bundle with separator", bundle: "icon/..", path: "coin.png", want: ErrInvalidPath},
		{name: "empty bundle", bundle: "", path: "coin.png", want: ErrInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := src.Open(ctx, tt.bundle, tt.path)
			if !errors.Is(err, tt.want) {
				t.Errorf("Open(%q, %q) = %v; want %v", tt.bundle, tt.path, err, tt.want)
			}
		})
	}

	if _, err := src.List(ctx, "floor"); !errors.Is(err, ErrBundleNotFound) {
		t.Errorf("List(floor) = %v; want ErrBundleNotFound", err)
	}
	if _, err := NewDirSource(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("NewDirSource on missing dir should fail")
	}
}

func TestSyntheticSourceDeterministic(t *testing.T) {
	ctx := context.Background()
	a := NewSyntheticSource(7, nil, 5)
	b := NewSyntheticSource(7, nil, 5)

	bundles, _ := a.Bundles(ctx)
	if !reflect.DeepEqual(bundles, DefaultBundles) {
		t.Fatalf("Bundles() = %v; want %v", bundles, DefaultBundles)
	}
	for _, bundle := range bundles {
		la, err := a.List(ctx, bundle)
		if err != nil {
			t.Fatal(err)
		}
		lb, _ := b.List(ctx, bundle)
		if !reflect.DeepEqual(la, lb) {
			t.Errorf("bundle %s differs between equal seeds", bundle)
		}
		if len(la) != 5 {
			t.Errorf("bundle %s has %d frames; want 5", bundle, len(la))
		}
		info, err := a.Open(ctx, bundle, la[0])
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if info.Width < 16 || info.Width > 256 || info.Bytes != int64(info.Width*info.Height*4) {
			t.Errorf("Open(%s) = %+v", la[0], info)
		}
	}

	if _, err := a.Open(ctx, "icon", "missing.png"); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("Open(missing) = %v; want ErrAssetNotFound", err)
	}
}

func TestKeyIsStable(t *testing.T) {
	if Key("icon", "coin.png") != Key("icon", "coin.png") {
		t.Error("Key must be deterministic")
	}
	if Key("icon", "coin.png") == Key("role", "coin.png") {
		t.Error("Key must depend on the bundle")
	}
}

func TestManagerLoadReusesResident(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewSyntheticSource(1, []string{"icon"}, 3), nil)
	frames, _ := m.Source().List(ctx, "icon")

	t1, err := m.Load(ctx, "icon", frames[0])
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	t2, err := m.Load(ctx, "icon", frames[0])
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if t1 != t2 {
		t.Error("loading a resident texture must return the same handle")
	}
	if t1.RefCount() != 0 {
		t.Errorf("fresh texture refs = %d; want 0", t1.RefCount())
	}
	if got, ok := m.Lookup(t1.ID()); !ok || got != t1 {
		t.Error("Lookup should find the resident texture")
	}

	s := m.Stats()
	if s.Loads != 1 || s.Reuses != 1 || s.Resident != 1 || s.ResidentBytes != t1.Info().Bytes {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestManagerRelease(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewSyntheticSource(1, []string{"icon"}, 3), nil)
	frames, _ := m.Source().List(ctx, "icon")

	tex, err := m.Load(ctx, "icon", frames[0])
	if err != nil {
		t.Fatal(err)
	}

	tex.AddRef()
	m.Release(tex)
	if m.Stats().Resident != 1 {
		t.Fatal("referenced texture must stay resident")
	}

	tex.DecRef()
	m.Release(tex)
	if s := m.Stats(); s.Resident != 0 || s.Frees != 1 || s.ResidentBytes != 0 {
		t.Errorf("Stats() after free = %+v", s)
	}

	// second release of a freed texture is a no-op
	m.Release(tex)
	if m.Stats().Frees != 1 {
		t.Error("double release must not free twice")
	}

	again, err := m.Load(ctx, "icon", frames[0])
	if err != nil {
		t.Fatal(err)
	}
	if again == tex {
		t.Error("reload after free should decode a new texture")
	}
	if again.ID() != tex.ID() {
		t.Error("reloaded texture must keep its key")
	}
}

func TestManagerConcurrentLoads(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewSyntheticSource(3, []string{"wall"}, 4), nil)
	frames, _ := m.Source().List(ctx, "wall")

	var wg sync.WaitGroup
	got := make([]*Texture, 32)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tex, err := m.Load(ctx, "wall", frames[i%len(frames)])
			if err != nil {
				t.Errorf("Load failed: %v", err)
				return
			}
			got[i] = tex
		}(i)
	}
	wg.Wait()

	for i := range got {
		if got[i] != got[i%len(frames)] {
			t.Fatalf("load %d returned a duplicate texture", i)
		}
	}
	if s := m.Stats(); s.Resident != len(frames) || s.Loads != int64(len(frames)) {
		t.Errorf("Stats() = %+v; want %d resident", s, len(frames))
	}
}

func TestLoaderDeliversEveryRequest(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewSyntheticSource(5, nil, 6), nil)

	var reqs []Request
	for i, b := range DefaultBundles {
		frames, _ := m.Source().List(ctx, b)
		for j, f := range frames {
			reqs = append(reqs, Request{Bundle: b, Path: f, Slot: i*10 + j})
		}
	}
	reqs = append(reqs, Request{Bundle: "icon", Path: "missing.png", Slot: 99})

	seen := map[int]bool{}
	failed := 0
	for r := range NewLoader(m, 3).Start(ctx, reqs) {
		seen[r.Slot] = true
		if r.Err != nil {
			failed++
			if !errors.Is(r.Err, ErrAssetNotFound) {
				t.Errorf("unexpected error: %v", r.Err)
			}
			continue
		}
		if r.Texture.Bundle() != r.Bundle || r.Texture.Path() != r.Path {
			t.Errorf("result for %s/%s carries %s", r.Bundle, r.Path, r.Texture.Name())
		}
	}

	if len(seen) != len(reqs) {
		t.Errorf("got %d results; want %d", len(seen), len(reqs))
	}
	if failed != 1 {
		t.Errorf("failed = %d; want 1", failed)
	}
}

func TestLoaderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(NewSyntheticSource(5, []string{"icon"}, 20), nil)
	frames, _ := m.Source().List(context.Background(), "icon")

	var reqs []Request
	for i, f := range frames {
		reqs = append(reqs, Request{Bundle: "icon", Path: f, Slot: i})
	}

	ch := NewLoader(m, 2).Start(ctx, reqs)
	first := <-ch
	cancel()
	delivered := 1
	for r := range ch {
		delivered++
		if r.Texture != nil {
			m.Release(r.Texture)
		}
	}
	if first.Texture != nil {
		m.Release(first.Texture)
	}
	if delivered >= len(reqs) {
		t.Logf("every load finished before cancellation")
	}

	// released textures were freed and nothing holds them
	for _, tex := range m.Resident() {
		if tex.RefCount() != 0 {
			t.Errorf("%s refs = %d; want 0", tex.Name(), tex.RefCount())
		}
	}
}

func TestLoaderLeavesCancelledTexturesToReceiver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager(NewSyntheticSource(5, []string{"icon"}, 2), nil)
	frames, _ := m.Source().List(context.Background(), "icon")

	// Every request shares one frame, so loads finishing after the cancel
	// hand out the texture the receiver already got.
	var reqs []Request
	for i := 0; i < 16; i++ {
		reqs = append(reqs, Request{Bundle: "icon", Path: frames[0], Slot: i})
	}

	ch := NewLoader(m, 4).Start(ctx, reqs)
	var got []*Texture
	for r := range ch {
		if len(got) == 0 {
			cancel()
		}
		if r.Texture != nil {
			got = append(got, r.Texture)
		}
	}
	if len(got) == 0 {
		t.Fatal("no texture delivered")
	}

	for _, tex := range got {
		if cur, ok := m.Lookup(tex.ID()); !ok || cur != tex {
			t.Fatalf("%s was freed before the receiver released it", tex.Name())
		}
	}
	for _, tex := range got {
		m.Release(tex)
	}
	if n := len(m.Resident()); n != 0 {
		t.Errorf("resident = %d after release; want 0", n)
	}
}
