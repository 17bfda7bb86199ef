package detection

import "strings"

// Blacklist holds scientific-name prefixes that are never admitted. The
// classifier emits these non-bird classes alongside species; "Human " keeps
// its trailing space so only the human vocal classes match.
var Blacklist = []string{"Dog", "Human ", "Engine", "Gun", "Siren", "Power tools"}

// Blacklisted reports whether the scientific name starts with a blacklisted prefix.
func Blacklisted(scientific string) bool {
	for _, prefix := range Blacklist {
		if strings.HasPrefix(scientific, prefix) {
			return true
		}
	}
	return false
}

// Admit decides whether a candidate becomes a detection. Thresholds are
// inclusive. The location check only applies when cfg has a location.
func Admit(taxon Taxon, audioConfidence, locationConfidence float64, cfg Config) bool {
	if Blacklisted(taxon.Scientific) {
		return false
	}
	if audioConfidence < cfg.MinAudioConfidence {
		return false
	}
	if cfg.Location != nil && locationConfidence < cfg.MinLocationConfidence {
		return false
	}
	return true
}
