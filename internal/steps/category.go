package steps

import "strings"

// MatchOption returns the discovered option text that matches the wanted name
// case-insensitively by substring, in either direction ("Phones" matches the
// option "Cell Phones & Accessories" and vice versa). Empty string when no
// option matches.
func MatchOption(want string, options []string) string {
	w := strings.ToLower(strings.TrimSpace(want))
	if w == "" {
		return ""
	}
	for _, opt := range options {
		o := strings.ToLower(strings.TrimSpace(opt))
		if o == "" {
			continue
		}
		if strings.Contains(o, w) || strings.Contains(w, o) {
			return opt
		}
	}
	return ""
}

// InferCategory scores each category's keyword set against the listing text
// (title plus description, lowercased) by count of keywords found. The
// highest non-zero score wins; ties go to the earlier table entry; zero
// matches falls back to the platform default.
func (p *Platform) InferCategory(title, description string) string {
	name, _ := scoreKeywords(p.Categories, title+" "+description)
	if name == "" {
		return p.DefaultCategory
	}
	return name
}

// ResolveAlias maps an ambiguous category name onto a canonical one via the
// platform's alias keyword table. Returns the input unchanged when no alias
// scores.
func (p *Platform) ResolveAlias(name string) string {
	canonical, _ := scoreKeywords(p.Aliases, name)
	if canonical == "" {
		return name
	}
	return canonical
}

func scoreKeywords(table []Category, text string) (string, int) {
	haystack := strings.ToLower(text)
	best, bestScore := "", 0
	for _, cat := range table {
		score := 0
		for _, kw := range cat.Keywords {
			if strings.Contains(haystack, strings.ToLower(kw)) {
				score++
			}
		}
		// Strictly greater: ties keep the earlier entry.
		if score > bestScore {
			best, bestScore = cat.Name, score
		}
	}
	return best, bestScore
}
