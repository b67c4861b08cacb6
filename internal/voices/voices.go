// Package voices holds the selectable synthesis voice catalog.
package voices

import "sort"

// Option is one selectable voice.
type Option struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	LanguageCode string `json:"languageCode"`
	Gender       string `json:"gender"`
	Provider     string `json:"provider"`
	QualityScore int    `json:"qualityScore"`
}

var catalog = []Option{
	{ID: "en-US-Neural2-F", Name: "Harper", LanguageCode: "en-US", Gender: "female", Provider: "proxy", QualityScore: 90},
	{ID: "en-US-Neural2-D", Name: "Miles", LanguageCode: "en-US", Gender: "male", Provider: "proxy", QualityScore: 88},
	{ID: "en-GB-Neural2-A", Name: "Imogen", LanguageCode: "en-GB", Gender: "female", Provider: "proxy", QualityScore: 85},
	{ID: "fr-FR-Neural2-B", Name: "Théo", LanguageCode: "fr-FR", Gender: "male", Provider: "proxy", QualityScore: 82},
	{ID: "aura-2-thalia-en", Name: "Thalia", LanguageCode: "en-US", Gender: "female", Provider: "deepgram", QualityScore: 92},
	{ID: "aura-2-orion-en", Name: "Orion", LanguageCode: "en-US", Gender: "male", Provider: "deepgram", QualityScore: 89},
	{ID: "aura-2-luna-en", Name: "Luna", LanguageCode: "en-US", Gender: "female", Provider: "deepgram", QualityScore: 87},
}

// List returns the catalog ordered by quality, best first, name as
// tie-breaker.
func List() []Option {
	out := make([]Option, len(catalog))
	copy(out, catalog)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].QualityScore != out[j].QualityScore {
			return out[i].QualityScore > out[j].QualityScore
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Find looks a voice up by id.
func Find(id string) (Option, bool) {
	for _, v := range catalog {
		if v.ID == id {
			return v, true
		}
	}
	return Option{}, false
}

// Default is the voice used before the user picks one.
func Default() Option {
	return List()[0]
}
