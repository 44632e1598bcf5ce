package search

import "strings"

// franchiseSynonyms maps a canonical franchise key to related query terms:
// main titles, sub-series and notable characters. Keys and values are stored
// normalized. The table is intentionally small and curated; it is not a
// general thesaurus.
var franchiseSynonyms = map[string][]string{
	"mario": {
		"super mario", "mario kart", "mario party", "paper mario",
		"luigi", "yoshi", "wario",
	},
	"zelda": {
		"the legend of zelda", "legend of zelda", "link", "hyrule",
		"breath of the wild", "tears of the kingdom",
	},
	"pokemon": {
		"pokemon red", "pokemon blue", "pokemon gold", "pokemon silver",
		"pikachu", "pokemon legends",
	},
	"final fantasy": {
		"ff", "final fantasy vii", "final fantasy x", "chocobo",
	},
	"sonic": {
		"sonic the hedgehog", "sonic mania", "sonic adventure", "tails", "knuckles",
	},
	"halo": {
		"halo combat evolved", "master chief", "halo infinite",
	},
	"metroid": {
		"metroid prime", "samus", "metroid dread",
	},
	"mega man": {
		"megaman", "mega man x", "mega man zero", "mega man legends",
	},
	"street fighter": {
		"sf", "street fighter ii", "ryu", "chun-li",
	},
	"grand theft auto": {
		"gta", "gta v", "san andreas", "vice city",
	},
	"elder scrolls": {
		"the elder scrolls", "skyrim", "oblivion", "morrowind",
	},
	"dark souls": {
		"demon's souls", "elden ring", "bloodborne",
	},
	"call of duty": {
		"cod", "modern warfare", "black ops", "warzone",
	},
	"kirby": {
		"kirby's dream land", "kirby super star",
	},
	"castlevania": {
		"symphony of the night", "belmont",
	},
}

// sisterTitleTokens are trailing tokens that mark a spin-off of the base
// franchise rather than an unrelated title ("mario kart", "mega man x").
var sisterTitleTokens = map[string]struct{}{
	"kart":     {},
	"party":    {},
	"legends":  {},
	"zero":     {},
	"x":        {},
	"world":    {},
	"maker":    {},
	"galaxy":   {},
	"odyssey":  {},
	"prime":    {},
	"mania":    {},
	"dread":    {},
	"infinite": {},
}

// Expand turns one user query into the set of related query strings used for
// multi-strategy retrieval. Deterministic, no I/O; the normalized original
// query is always first. An empty or whitespace-only query yields a singleton
// set containing the empty string; callers short-circuit before retrieval.
func Expand(query string) []string {
	normalized := normalizeQuery(query)
	out := []string{normalized}
	if normalized == "" {
		return out
	}

	seen := map[string]struct{}{normalized: {}}
	add := func(term string) {
		term = normalizeQuery(term)
		if term == "" {
			return
		}
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}

	addFranchise := func(key string) {
		terms, ok := franchiseSynonyms[key]
		if !ok {
			return
		}
		add(key)
		for _, term := range terms {
			add(term)
		}
	}

	// Whole query, then each word, against the synonym table.
	addFranchise(normalized)
	words := strings.Fields(normalized)
	if len(words) > 1 {
		for _, word := range words {
			addFranchise(word)
		}
	}

	// Sequel and spin-off patterns: "<base> <number|numeral>", "<base> <token>".
	if base, ok := sequelBase(normalized); ok {
		add(base)
		addFranchise(base)
	}

	return out
}

// sequelBase strips a trailing sequel number or sister-title token and
// returns the base phrase.
func sequelBase(normalized string) (string, bool) {
	words := strings.Fields(normalized)
	if len(words) < 2 {
		return "", false
	}
	last := words[len(words)-1]
	base := strings.Join(words[:len(words)-1], " ")
	if sequelNumber(last) > 0 {
		return base, true
	}
	if _, ok := sisterTitleTokens[last]; ok {
		return base, true
	}
	return "", false
}

// matchedFranchise returns the franchise key a query belongs to, if any. Used
// by the supplementation policy and the dynamic relevance threshold.
func matchedFranchise(normalized string) (string, bool) {
	if normalized == "" {
		return "", false
	}
	if _, ok := franchiseSynonyms[normalized]; ok {
		return normalized, true
	}
	for _, word := range strings.Fields(normalized) {
		if _, ok := franchiseSynonyms[word]; ok {
			return word, true
		}
	}
	if base, ok := sequelBase(normalized); ok {
		if _, known := franchiseSynonyms[base]; known {
			return base, true
		}
	}
	// Synonym values count too: "skyrim" should map back to "elder scrolls".
	for key, terms := range franchiseSynonyms {
		for _, term := range terms {
			if term == normalized {
				return key, true
			}
		}
	}
	return "", false
}
