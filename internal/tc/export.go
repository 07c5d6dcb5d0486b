package tc

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"tcprefs-go/internal/model"
)

// The export format is the Teamcenter preferences XML consumed by external
// tooling; indentation, attribute order and the always-present (possibly
// empty) <context> element are part of the contract, which is why this is a
// template writer and not an encoding/xml marshal.

// WritePreferencesXML writes the given preferences grouped by category.
// Category keys and preference names are locale-sorted.
func (s *Service) WritePreferencesXML(w io.Writer, prefs []*model.Preference) error {
	groups := make(map[string][]*model.Preference)
	for _, p := range prefs {
		groups[p.Category] = append(groups[p.Category], p)
	}

	categories := make([]string, 0, len(groups))
	for c := range groups {
		categories = append(categories, c)
	}
	collator := newCollator()
	sort.SliceStable(categories, func(i, j int) bool {
		return collator.CompareString(categories[i], categories[j]) < 0
	})

	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.WriteString("<preferences version=\"10.0\">\n")

	for _, category := range categories {
		items := groups[category]
		sort.SliceStable(items, func(i, j int) bool {
			return collator.CompareString(items[i].Name, items[j].Name) < 0
		})

		fmt.Fprintf(&b, "  <category name=\"%s\">\n", xmlEscape(category))
		b.WriteString("    <category_description></category_description>\n")

		for _, p := range items {
			writePreferenceXML(&b, p, p.Values)
		}

		b.WriteString("  </category>\n")
	}

	b.WriteString("</preferences>\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteRevisionXML writes a single preference with the values of one
// historical revision substituted for the current ones.
func (s *Service) WriteRevisionXML(w io.Writer, p *model.Preference, rev *model.Revision) error {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.WriteString("<preferences version=\"10.0\">\n")
	fmt.Fprintf(&b, "  <category name=\"%s\">\n", xmlEscape(p.Category))
	b.WriteString("    <category_description></category_description>\n")
	writePreferenceXML(&b, p, rev.Values)
	b.WriteString("  </category>\n")
	b.WriteString("</preferences>\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func writePreferenceXML(b *strings.Builder, p *model.Preference, values []string) {
	fmt.Fprintf(b, "    <preference name=\"%s\" type=\"%s\" array=\"%s\" disabled=\"%s\" protectionScope=\"%s\" envEnabled=\"%s\">\n",
		xmlEscape(p.Name),
		model.TypeString(p.Type),
		boolAttr(p.IsArray),
		boolAttr(p.IsDisabled),
		xmlEscape(p.ProtectionScope),
		boolAttr(p.IsEnvEnabled))

	fmt.Fprintf(b, "      <preference_description>%s</preference_description>\n", xmlEscape(p.Description))

	// The context element is emitted even when there are no values.
	b.WriteString("      <context name=\"Teamcenter\">\n")
	for _, v := range values {
		fmt.Fprintf(b, "        <value>%s</value>\n", xmlEscape(v))
	}
	b.WriteString("      </context>\n")

	b.WriteString("    </preference>\n")
}

func boolAttr(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

var xmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string {
	return xmlReplacer.Replace(s)
}
