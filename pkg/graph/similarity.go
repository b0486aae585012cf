// Package graph holds small text utilities shared by the executor and the
// query layer: fuzzy name matching, label normalization, and deterministic
// color assignment for synthesized prototypes.
package graph

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// DefaultFuzzyThreshold is the similarity at or above which two prototype
// names are considered the same concept. Overridable per workspace via
// config.Defaults.FuzzyMatchThreshold.
const DefaultFuzzyThreshold = 0.80

// DiceSimilarity computes the Sørensen–Dice coefficient over character
// bigrams of the case-folded inputs. Returns a value in [0, 1]; identical
// strings score 1, strings shorter than two runes only match exactly.
func DiceSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}

	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}

	counts := make(map[string]int, len(ba))
	for _, g := range ba {
		counts[g]++
	}
	overlap := 0
	for _, g := range bb {
		if counts[g] > 0 {
			counts[g]--
			overlap++
		}
	}
	return 2 * float64(overlap) / float64(len(ba)+len(bb))
}

func bigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 2 {
		return nil
	}
	grams := make([]string, 0, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		grams = append(grams, string(runes[i:i+2]))
	}
	return grams
}

// TitleCase normalizes a connection label to Title Case: each
// whitespace-separated word is capitalized, interior runs of whitespace
// collapse to a single space.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// ColorForName derives a stable color for a synthesized definition
// prototype from a hash of its normalized name. The palette keeps hues
// spread and saturation readable on the canvas.
func ColorForName(name string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(name))))
	hue := int(h.Sum32() % 360)
	r, g, b := hslToRGB(float64(hue), 0.55, 0.52)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	c := (1 - abs(2*l-1)) * s
	x := c * (1 - abs(mod(h/60, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return uint8((r + m) * 255), uint8((g + m) * 255), uint8((b + m) * 255)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func mod(a, b float64) float64 {
	for a >= b {
		a -= b
	}
	return a
}

// genericLabels are connection labels too vague to deserve a definition
// prototype; define_connections skips them unless told otherwise.
var genericLabels = map[string]bool{
	"connects":    true,
	"relates to":  true,
	"related to":  true,
	"links to":    true,
	"connected":   true,
	"association": true,
}

// IsGenericLabel reports whether the label carries no semantic content
// worth a definition prototype.
func IsGenericLabel(label string) bool {
	return genericLabels[strings.ToLower(strings.TrimSpace(label))]
}
