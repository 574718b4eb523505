package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/fuabioo/atlascache/internal/asset"
)

// Writes a sample asset root: one directory per bundle, each holding solid
// color PNG frames of random size.
func main() {
	out := flag.String("out", "testdata/assets", "asset root to create")
	frames := flag.Int("frames", 20, "frames per bundle")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	faker := gofakeit.New(*seed)

	for _, bundle := range asset.DefaultBundles {
		dir := filepath.Join(*out, bundle)
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal(err)
		}

		for i := 0; i < *frames; i++ {
			w, h := faker.Number(16, 256), faker.Number(16, 256)
			img := image.NewRGBA(image.Rect(0, 0, w, h))
			c := color.RGBA{
				R: uint8(faker.Number(0, 255)),
				G: uint8(faker.Number(0, 255)),
				B: uint8(faker.Number(0, 255)),
				A: 255,
			}
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					img.SetRGBA(x, y, c)
				}
			}

			name := fmt.Sprintf("%s_%s_%03d.png", bundle, strings.ToLower(faker.Animal()), i)
			f, err := os.Create(filepath.Join(dir, name))
			if err != nil {
				log.Fatal(err)
			}
			if err := png.Encode(f, img); err != nil {
				f.Close()
				log.Fatal(err)
			}
			if err := f.Close(); err != nil {
				log.Fatal(err)
			}
		}
	}

	fmt.Printf("Asset root created at %s (%d bundles, %d frames each)\n", *out, len(asset.DefaultBundles), *frames)
}
