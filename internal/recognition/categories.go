// File: internal/recognition/categories.go
package recognition

import "strings"

// categorySynonyms maps the phrasings challenge prompts actually use onto the
// canonical label set the detector models are trained with. Keys are
// lowercase singular forms after normalization.
var categorySynonyms = map[string]string{
	"bicycle":        "bicycle",
	"bike":           "bicycle",
	"bus":            "bus",
	"school bus":     "bus",
	"car":            "car",
	"vehicle":        "car",
	"automobile":     "car",
	"taxi":           "car",
	"crosswalk":      "crosswalk",
	"cross walk":     "crosswalk",
	"zebra crossing": "crosswalk",
	"fire hydrant":   "fire hydrant",
	"hydrant":        "fire hydrant",
	"motorcycle":     "motorcycle",
	"motorbike":      "motorcycle",
	"traffic light":  "traffic light",
	"stoplight":      "traffic light",
	"stop light":     "traffic light",
	"traffic signal": "traffic light",
	"boat":           "boat",
	"bridge":         "bridge",
	"stair":          "stairs",
	"stairs":         "stairs",
	"staircase":      "stairs",
	"chimney":        "chimney",
	"palm tree":      "palm tree",
	"palm":           "palm tree",
	"tractor":        "tractor",
	"truck":          "truck",
	"parking meter":  "parking meter",
	"train":          "train",
	"airplane":       "airplane",
	"plane":          "airplane",
	"mountain":       "mountain",
	"statue":         "statue",
}

// CanonicalCategory normalizes a prompt phrase ("Crosswalks", "a fire
// hydrant") to its canonical detector label. Returns false when the phrase
// names no known category.
func CanonicalCategory(phrase string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(phrase))
	s = strings.Trim(s, ".,!?:;\"'")
	for _, article := range []string{"a ", "an ", "the ", "all "} {
		s = strings.TrimPrefix(s, article)
	}
	s = strings.Join(strings.Fields(s), " ")

	if canon, ok := categorySynonyms[s]; ok {
		return canon, true
	}
	// Naive singularization covers the plural prompts ("buses", "bicycles").
	for _, suffix := range []string{"es", "s"} {
		if trimmed, ok := strings.CutSuffix(s, suffix); ok {
			if canon, found := categorySynonyms[trimmed]; found {
				return canon, true
			}
		}
	}
	return "", false
}

// KnownCategories returns the canonical label set, for scanning free text.
func KnownCategories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, canon := range categorySynonyms {
		if _, dup := seen[canon]; dup {
			continue
		}
		seen[canon] = struct{}{}
		out = append(out, canon)
	}
	return out
}

// FindCategory scans free text for the longest matching category phrase.
// Longer synonyms win so "traffic light" is not reported as a bare "light".
func FindCategory(text string) (string, bool) {
	lower := strings.ToLower(text)
	best := ""
	bestLen := 0
	for phrase, canon := range categorySynonyms {
		if strings.Contains(lower, phrase) && len(phrase) > bestLen {
			best = canon
			bestLen = len(phrase)
		}
	}
	return best, best != ""
}

// connectives introduce the target noun in challenge prompts.
var connectives = map[string]bool{
	"with": true, "containing": true, "select": true,
}

// promptFiller are words that sit between a connective and the noun.
var promptFiller = map[string]bool{
	"a": true, "an": true, "the": true, "all": true, "each": true,
	"every": true, "of": true, "image": true, "images": true,
	"picture": true, "pictures": true, "square": true, "squares": true,
}

// promptNoise are post-connective words that can never be a category.
var promptNoise = map[string]bool{
	"verify": true, "click": true, "button": true, "none": true,
	"left": true, "there": true, "them": true, "that": true, "this": true,
	"until": true, "once": true, "if": true, "below": true, "skip": true,
}

// HeuristicCategory extracts the noun following a connective word when the
// synonym lexicon has no entry, so "Select all images with gondolas" still
// yields a usable target. The last connective in the prompt wins, since the
// noun trails the prompt's verb phrase.
func HeuristicCategory(text string) (string, bool) {
	lower := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return ' '
	}, strings.ToLower(text))
	words := strings.Fields(lower)

	candidate := ""
	for i, w := range words {
		if !connectives[w] {
			continue
		}
		for j := i + 1; j < len(words); j++ {
			next := words[j]
			if connectives[next] {
				break
			}
			if promptFiller[next] {
				continue
			}
			if !promptNoise[next] {
				candidate = next
			}
			break
		}
	}
	if candidate == "" {
		return "", false
	}
	switch {
	case strings.HasSuffix(candidate, "ses"), strings.HasSuffix(candidate, "xes"),
		strings.HasSuffix(candidate, "zes"), strings.HasSuffix(candidate, "ches"),
		strings.HasSuffix(candidate, "shes"):
		candidate = strings.TrimSuffix(candidate, "es")
	case strings.HasSuffix(candidate, "s") && !strings.HasSuffix(candidate, "ss") && len(candidate) > 3:
		candidate = strings.TrimSuffix(candidate, "s")
	}
	return candidate, true
}
