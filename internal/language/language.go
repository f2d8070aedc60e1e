package language

import (
	"strings"

	xlang "golang.org/x/text/language"
)

type entry struct {
	code2   string
	codes3  []string
	display string
}

var languages = []entry{
	{"en", []string{"eng"}, "English"},
	{"es", []string{"spa"}, "Spanish"},
	{"fr", []string{"fra", "fre"}, "French"},
	{"de", []string{"deu", "ger"}, "German"},
	{"it", []string{"ita"}, "Italian"},
	{"pt", []string{"por"}, "Portuguese"},
	{"ja", []string{"jpn"}, "Japanese"},
	{"ko", []string{"kor"}, "Korean"},
	{"zh", []string{"zho", "chi"}, "Chinese"},
	{"ru", []string{"rus"}, "Russian"},
	{"ar", []string{"ara"}, "Arabic"},
	{"hi", []string{"hin"}, "Hindi"},
	{"nl", []string{"nld", "dut"}, "Dutch"},
	{"pl", []string{"pol"}, "Polish"},
	{"sv", []string{"swe"}, "Swedish"},
	{"tl", []string{"tgl", "fil"}, "Tagalog"},
	{"id", []string{"ind"}, "Indonesian"},
	{"tr", []string{"tur"}, "Turkish"},
}

var index = func() map[string]*entry {
	m := make(map[string]*entry, len(languages)*3)
	for i := range languages {
		e := &languages[i]
		m[e.code2] = e
		m[strings.ToLower(e.display)] = e
		for _, c := range e.codes3 {
			m[c] = e
		}
	}
	return m
}()

// ToISO2 converts a language code, BCP 47 caption tag ("en-US", "pt-BR") or
// English language name to its two-letter form. Unknown two-letter codes pass
// through; anything else returns "".
func ToISO2(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if e, ok := index[code]; ok {
		return e.code2
	}
	if base := baseOf(code); base != "" {
		if e, ok := index[base]; ok {
			return e.code2
		}
		if len(base) == 2 {
			return base
		}
	}
	if len(code) == 2 {
		return code
	}
	return ""
}

// baseOf returns the primary subtag of a BCP 47 tag. YouTube suffixes such as
// "-orig" on auto-translated tracks are dropped first.
func baseOf(tag string) string {
	tag = strings.TrimSuffix(tag, "-orig")
	parsed, err := xlang.Parse(tag)
	if err != nil {
		if i := strings.IndexAny(tag, "-_"); i > 0 {
			return tag[:i]
		}
		return ""
	}
	base, _ := parsed.Base()
	return base.String()
}

// DisplayName returns the English name for a recognized code, "Unknown" for
// empty input and the upper-cased code otherwise.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	if iso := ToISO2(code); iso != "" {
		if e, ok := index[iso]; ok {
			return e.display
		}
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeList deduplicates a preference list, mapping each entry to its
// two-letter form where one is known.
func NormalizeList(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		if iso := ToISO2(code); iso != "" {
			code = iso
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

// PickCaption chooses the caption track to use from the tags a video offers.
// An exact tag match wins; otherwise the first track whose language matches
// the earliest preference is returned. It returns "" when nothing matches.
func PickCaption(available, preferred []string) string {
	for _, want := range preferred {
		for _, tag := range available {
			if strings.EqualFold(tag, want) {
				return tag
			}
		}
	}
	for _, want := range NormalizeList(preferred) {
		for _, tag := range available {
			if ToISO2(tag) == want {
				return tag
			}
		}
	}
	return ""
}
