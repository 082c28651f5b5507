package tts

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	LanguageEnglish = "en"
	LanguageHindi   = "hi"

	// hindiDominanceThreshold is the matched-word ratio above which the
	// utterance is treated as primarily Hindi.
	hindiDominanceThreshold = 0.2
)

// hindiMarkers are common Hindi function words in roman transliteration.
// Visitors type queries both ways, so detection cannot rely on script alone.
var hindiMarkers = map[string]bool{
	"hai": true, "hain": true, "kya": true, "kaise": true, "kahan": true,
	"kab": true, "kaun": true, "aur": true, "mein": true, "nahi": true,
	"nahin": true, "haan": true, "aap": true, "hum": true, "tum": true,
	"mera": true, "tera": true, "uska": true, "yeh": true, "woh": true,
	"kyun": true, "kyunki": true, "lekin": true, "magar": true, "abhi": true,
	"kal": true, "aaj": true, "bahut": true, "thoda": true, "zyada": true,
	"chahiye": true, "karo": true, "karna": true, "batao": true, "bataiye": true,
	"kripya": true, "dhanyavad": true, "namaste": true, "ji": true,
}

// Detection holds the language split of an utterance.
type Detection struct {
	Primary   string
	Secondary string
}

// DetectLanguage classifies text as predominantly Hindi or English using a
// fixed marker-word list plus Devanagari script counting. Best-effort only;
// the caller's explicit language hint always wins.
func DetectLanguage(text string) Detection {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return Detection{Primary: LanguageEnglish, Secondary: LanguageHindi}
	}

	matched := 0
	for _, w := range words {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if hindiMarkers[w] || containsDevanagari(w) {
			matched++
		}
	}

	if float64(matched)/float64(len(words)) > hindiDominanceThreshold {
		return Detection{Primary: LanguageHindi, Secondary: LanguageEnglish}
	}
	return Detection{Primary: LanguageEnglish, Secondary: LanguageHindi}
}

func containsDevanagari(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Devanagari, r) {
			return true
		}
	}
	return false
}

// pronunciations maps provider name to words that engine is known to
// mispronounce, mostly transliterated proper nouns from the campus and
// court datasets. Replacements never contain their own key, which keeps
// the pass idempotent.
var pronunciations = map[string]map[string]string{
	"elevenlabs": {
		"Vaani":     "Vaa-nee",
		"Saket":     "Saa-ket",
		"Dwarka":    "Dwaar-ka",
		"Tehsil":    "Teh-seel",
		"Kacheri":   "Ka-cheh-ree",
		"Vidyalaya": "Vid-yaa-la-ya",
	},
	"sarvam": {
		"FAQ":  "F A Q",
		"Dept": "Department",
	},
}

var pronunciationPatterns = buildPronunciationPatterns()

type pronunciationRule struct {
	re          *regexp.Regexp
	replacement string
}

func buildPronunciationPatterns() map[string][]pronunciationRule {
	out := make(map[string][]pronunciationRule, len(pronunciations))
	for provider, table := range pronunciations {
		rules := make([]pronunciationRule, 0, len(table))
		for word, replacement := range table {
			re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
			rules = append(rules, pronunciationRule{re: re, replacement: replacement})
		}
		out[provider] = rules
	}
	return out
}

// ApplyPronunciations rewrites words a given provider mispronounces.
// Idempotent: running it twice yields the same text as once.
func ApplyPronunciations(provider, text string) string {
	for _, rule := range pronunciationPatterns[provider] {
		text = rule.re.ReplaceAllString(text, rule.replacement)
	}
	return text
}
