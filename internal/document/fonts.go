package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// Supported font families and weights. Unknown pairs fall back to the default
// pair rather than erroring.
const (
	FamilySerif = "serif"
	FamilySans  = "sans"

	WeightRegular = "regular"
	WeightBold    = "bold"
)

type fontKey struct {
	family string
	weight string
}

// FontResolver maps (family, weight, size) to a drawable face. Font files are
// optional assets named <family>-<weight>.ttf under the font directory; when
// a file is absent the resolver degrades to a fixed built-in face so
// rendering stays deterministic and asset-free in development and tests.
type FontResolver struct {
	mu     sync.Mutex
	parsed map[fontKey]*truetype.Font
	faces  map[string]font.Face
}

// NewFontResolver loads whatever font files exist under dir.
func NewFontResolver(dir string) *FontResolver {
	r := &FontResolver{
		parsed: make(map[fontKey]*truetype.Font),
		faces:  make(map[string]font.Face),
	}
	if dir == "" {
		return r
	}
	for _, family := range []string{FamilySerif, FamilySans} {
		for _, weight := range []string{WeightRegular, WeightBold} {
			path := filepath.Join(dir, fmt.Sprintf("%s-%s.ttf", family, weight))
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			f, err := truetype.Parse(data)
			if err != nil {
				continue
			}
			r.parsed[fontKey{family, weight}] = f
		}
	}
	return r
}

// Resolve returns a face for the requested family/weight at the given size.
func (r *FontResolver) Resolve(family, weight string, size float64) font.Face {
	family = normalizeFamily(family)
	weight = normalizeWeight(weight)
	if size <= 0 {
		size = 12
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cacheKey := fmt.Sprintf("%s/%s/%.2f", family, weight, size)
	if face, ok := r.faces[cacheKey]; ok {
		return face
	}

	f, ok := r.parsed[fontKey{family, weight}]
	if !ok {
		// Regular weight of the same family, then the built-in face.
		if f, ok = r.parsed[fontKey{family, WeightRegular}]; !ok {
			return basicfont.Face7x13
		}
	}

	face := truetype.NewFace(f, &truetype.Options{Size: size})
	r.faces[cacheKey] = face
	return face
}

func normalizeFamily(family string) string {
	switch strings.ToLower(family) {
	case FamilySerif, "times", "garamond":
		return FamilySerif
	default:
		return FamilySans
	}
}

func normalizeWeight(weight string) string {
	switch strings.ToLower(weight) {
	case WeightBold, "700", "800", "900":
		return WeightBold
	default:
		return WeightRegular
	}
}
