package archive

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxLabelLength = 48

var lower = cases.Lower(language.Und)

// SanitizeLabel folds a free-form item label into a lowercase ASCII slug.
// Accents are stripped, any run of other characters becomes a single dash.
func SanitizeLabel(label string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, label)
	if err != nil {
		folded = label
	}
	folded = lower.String(folded)

	var b strings.Builder
	dash := false
	for _, r := range folded {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > maxLabelLength {
		slug = strings.TrimRight(slug[:maxLabelLength], "-")
	}
	return slug
}

// EntryName returns the archive filename for the index-th file (1-based) of
// total, for example "03-front-view.png".
func EntryName(index, total int, label, ext string) string {
	width := len(fmt.Sprint(total))
	if width < 2 {
		width = 2
	}
	slug := SanitizeLabel(label)
	if slug == "" {
		slug = "item"
	}
	return fmt.Sprintf("%0*d-%s%s", width, index, slug, ext)
}

// extensionFor picks a file extension from the content type, the sniffed
// bytes, or the URL path in that order.
func extensionFor(contentType string, data []byte, rawURL string) string {
	base := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if base != "" && base != "application/octet-stream" {
		if m := mimetype.Lookup(base); m != nil && m.Extension() != "" {
			return m.Extension()
		}
	}
	if len(data) > 0 {
		if m := mimetype.Detect(data); m.Extension() != "" {
			return m.Extension()
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" && len(ext) <= 6 {
			return strings.ToLower(ext)
		}
	}
	return ".bin"
}
