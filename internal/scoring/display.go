package scoring

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// FormatPercent renders ratio (0..1) as a whole-number percentage in the
// conventions of tag. Rounding happens here only; never compare its output.
func FormatPercent(tag language.Tag, ratio float64) string {
	p := message.NewPrinter(tag)
	return p.Sprint(number.Percent(ratio, number.MaxFractionDigits(0)))
}

// MatchLanguage picks the best supported display language for an
// Accept-Language header value, defaulting to English.
func MatchLanguage(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	tag, _, _ := displayMatcher.Match(tags...)
	return tag
}

var displayMatcher = language.NewMatcher([]language.Tag{
	language.English,
	language.German,
	language.French,
	language.Spanish,
	language.Malay,
})
