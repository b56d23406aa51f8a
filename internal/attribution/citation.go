package attribution

import (
	"errors"
	"fmt"
	"strings"
)

// Style selects a citation output format.
type Style string

// Supported citation styles.
const (
	StyleAPA     Style = "apa"
	StyleMLA     Style = "mla"
	StyleChicago Style = "chicago"
	StyleBibTeX  Style = "bibtex"
	StyleIEEE    Style = "ieee"
)

// ValidStyles is the set of supported citation styles.
var ValidStyles = map[Style]bool{
	StyleAPA:     true,
	StyleMLA:     true,
	StyleChicago: true,
	StyleBibTeX:  true,
	StyleIEEE:    true,
}

// ErrInvalidStyle is returned for an unsupported citation style.
var ErrInvalidStyle = errors.New("invalid citation style")

// OriginInfo carries the provenance facts a citation needs. Supplied by the
// provenance manager through the OriginSource interface so this package does
// not depend on it.
type OriginInfo struct {
	Creator    string
	Year       int
	SourceType string
}

// OriginSource resolves origin facts for an object.
type OriginSource interface {
	OriginInfo(objectHash string) (*OriginInfo, error)
}

// WithOriginSource wires a provenance lookup into citation generation.
func WithOriginSource(src OriginSource) ManagerOption {
	return func(m *Manager) {
		m.origins = src
	}
}

// GenerateCitation renders a citation for an object in the requested style.
// Purely derived from the attribution and (when available) origin facts; no
// side effects.
func (m *Manager) GenerateCitation(objectHash string, style Style) (string, error) {
	if !ValidStyles[style] {
		return "", fmt.Errorf("%w: %q", ErrInvalidStyle, style)
	}

	a, err := m.GetAttribution(objectHash)
	if err != nil {
		return "", err
	}

	year := a.CreatedAt.Year()
	if m.origins != nil {
		if info, err := m.origins.OriginInfo(objectHash); err == nil && info != nil && info.Year > 0 {
			year = info.Year
		}
	}

	names := make([]string, 0, len(a.Contributors))
	for _, c := range a.Contributors {
		names = append(names, c.Identity)
	}

	title := a.ObjectType
	if title == "" {
		title = "Untitled object"
	}
	short := objectHash
	if len(short) > 16 {
		short = short[:16]
	}

	return formatCitation(style, names, year, title, objectHash, short), nil
}

// formatCitation dispatches on the style tag.
func formatCitation(style Style, names []string, year int, title, hash, short string) string {
	switch style {
	case StyleAPA:
		return fmt.Sprintf("%s (%d). %s [Content-addressed object %s].",
			joinNames(names, "&"), year, title, short)
	case StyleMLA:
		return fmt.Sprintf("%s. \"%s.\" %d. Content-addressed object %s.",
			joinNames(names, "and"), title, year, short)
	case StyleChicago:
		return fmt.Sprintf("%s. %d. \"%s.\" Content-addressed object %s.",
			joinNames(names, "and"), year, title, short)
	case StyleIEEE:
		return fmt.Sprintf("%s, \"%s,\" content-addressed object %s, %d.",
			joinNames(names, "and"), title, short, year)
	case StyleBibTeX:
		var b strings.Builder
		fmt.Fprintf(&b, "@misc{obj%s,\n", short)
		fmt.Fprintf(&b, "  author = {%s},\n", strings.Join(names, " and "))
		fmt.Fprintf(&b, "  title = {%s},\n", title)
		fmt.Fprintf(&b, "  year = {%d},\n", year)
		fmt.Fprintf(&b, "  note = {Content-addressed object %s}\n", hash)
		b.WriteString("}")
		return b.String()
	default:
		return ""
	}
}

// joinNames renders a name list with a localized final conjunction.
func joinNames(names []string, conj string) string {
	switch len(names) {
	case 0:
		return "Anonymous"
	case 1:
		return names[0]
	case 2:
		return names[0] + " " + conj + " " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", " + conj + " " + names[len(names)-1]
	}
}
