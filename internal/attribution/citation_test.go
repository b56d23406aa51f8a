package attribution

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type staticOrigins struct {
	info map[string]*OriginInfo
}

func (s *staticOrigins) OriginInfo(objectHash string) (*OriginInfo, error) {
	return s.info[objectHash], nil
}

func citationFixture(t *testing.T) (*Manager, string) {
	t.Helper()
	hash := testHash("a1")
	origins := &staticOrigins{info: map[string]*OriginInfo{
		hash: {Creator: "alice", Year: 2025, SourceType: "original"},
	}}
	m := NewManager(NewInMemoryRepository(),
		WithOriginSource(origins),
		WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }),
	)
	if _, err := m.CreateAttribution(hash, "Primitive Embedding Atlas", []Contributor{
		{Identity: "alice", Role: RoleCreator, CreditShare: 0.7},
		{Identity: "bob", Role: RoleAuthor, CreditShare: 0.3},
	}); err != nil {
		t.Fatalf("CreateAttribution() error = %v", err)
	}
	return m, hash
}

func TestGenerateCitation_AllStyles(t *testing.T) {
	m, hash := citationFixture(t)

	for style := range ValidStyles {
		citation, err := m.GenerateCitation(hash, style)
		if err != nil {
			t.Fatalf("GenerateCitation(%s) error = %v", style, err)
		}
		if citation == "" {
			t.Errorf("GenerateCitation(%s) is empty", style)
		}
		if !strings.Contains(citation, "alice") || !strings.Contains(citation, "bob") {
			t.Errorf("GenerateCitation(%s) = %q, missing contributor names", style, citation)
		}
		// Origin year overrides the attribution timestamp year.
		if !strings.Contains(citation, "2025") {
			t.Errorf("GenerateCitation(%s) = %q, want origin year 2025", style, citation)
		}
	}
}

func TestGenerateCitation_BibTeXShape(t *testing.T) {
	m, hash := citationFixture(t)

	citation, err := m.GenerateCitation(hash, StyleBibTeX)
	if err != nil {
		t.Fatalf("GenerateCitation() error = %v", err)
	}
	if !strings.HasPrefix(citation, "@misc{") || !strings.HasSuffix(citation, "}") {
		t.Errorf("BibTeX citation malformed: %q", citation)
	}
	if !strings.Contains(citation, "author = {alice and bob}") {
		t.Errorf("BibTeX author field wrong: %q", citation)
	}
}

func TestGenerateCitation_InvalidStyle(t *testing.T) {
	m, hash := citationFixture(t)

	_, err := m.GenerateCitation(hash, Style("harvard"))
	if !errors.Is(err, ErrInvalidStyle) {
		t.Errorf("GenerateCitation() error = %v, want ErrInvalidStyle", err)
	}
}

func TestGenerateCitation_NoAttribution(t *testing.T) {
	m := NewManager(NewInMemoryRepository())

	_, err := m.GenerateCitation(testHash("ghost"), StyleAPA)
	if !errors.Is(err, ErrNoAttribution) {
		t.Errorf("GenerateCitation() error = %v, want ErrNoAttribution", err)
	}
}
