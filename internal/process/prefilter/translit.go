package prefilter

// translitPairs maps common tech terms between their latin and cyrillic
// spellings so a russian-language message still trips an english keyword and
// vice versa. The map is closed on purpose: generic letter-by-letter
// transliteration produces too many false gates.
var translitPairs = map[string]string{
	"site":      "сайт",
	"developer": "разработчик",
	"bot":       "бот",
	"design":    "дизайн",
	"marketing": "маркетинг",
	"seo":       "сео",
	"crm":       "црм",
}

var reverseTranslit = func() map[string]string {
	m := make(map[string]string, len(translitPairs))
	for lat, cyr := range translitPairs {
		m[cyr] = lat
	}

	return m
}()

// transliterate returns the counterpart spelling of a keyword when the
// closed map knows it.
func transliterate(keyword string) (string, bool) {
	if alt, ok := translitPairs[keyword]; ok {
		return alt, true
	}

	if alt, ok := reverseTranslit[keyword]; ok {
		return alt, true
	}

	return "", false
}
