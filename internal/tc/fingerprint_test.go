package tc_test

import (
	"testing"

	"tcprefs-go/internal/tc"
)

func basePreference() tc.RawPreference {
	return tc.RawPreference{
		Definition: tc.RawDefinition{
			Name:            "TC_allow_inherited_group_changes",
			Category:        "Security",
			Description:     "Controls group inheritance",
			Type:            1,
			ProtectionScope: "Site",
		},
		Values: &tc.RawValues{
			ValueOrigination: "Site",
			Values:           []string{"true"},
		},
	}
}

func TestFingerprint(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		a := tc.FingerprintRaw(basePreference())
		b := tc.FingerprintRaw(basePreference())
		if a != b {
			t.Errorf("FingerprintRaw() not deterministic: %s != %s", a, b)
		}
		if len(a) != 32 {
			t.Errorf("fingerprint length = %d, want 32 hex chars", len(a))
		}
	})

	t.Run("changes when any definition field changes", func(t *testing.T) {
		base := tc.FingerprintRaw(basePreference())

		mutations := map[string]func(*tc.RawPreference){
			"name":             func(p *tc.RawPreference) { p.Definition.Name = "other" },
			"category":         func(p *tc.RawPreference) { p.Definition.Category = "General" },
			"description":      func(p *tc.RawPreference) { p.Definition.Description = "changed" },
			"type":             func(p *tc.RawPreference) { p.Definition.Type = 0 },
			"isArray":          func(p *tc.RawPreference) { p.Definition.IsArray = true },
			"isDisabled":       func(p *tc.RawPreference) { p.Definition.IsDisabled = true },
			"protectionScope":  func(p *tc.RawPreference) { p.Definition.ProtectionScope = "User" },
			"isEnvEnabled":     func(p *tc.RawPreference) { p.Definition.IsEnvEnabled = true },
			"isOOTBPreference": func(p *tc.RawPreference) { p.Definition.IsOOTBPreference = true },
			"valueOrigination": func(p *tc.RawPreference) { p.Values.ValueOrigination = "User" },
			"values":           func(p *tc.RawPreference) { p.Values.Values = []string{"false"} },
		}

		for field, mutate := range mutations {
			p := basePreference()
			mutate(&p)
			if got := tc.FingerprintRaw(p); got == base {
				t.Errorf("fingerprint unchanged after mutating %s", field)
			}
		}
	})

	t.Run("is sensitive to value order", func(t *testing.T) {
		p := basePreference()
		p.Values.Values = []string{"a", "b"}
		forward := tc.FingerprintRaw(p)

		p.Values.Values = []string{"b", "a"}
		reversed := tc.FingerprintRaw(p)

		if forward == reversed {
			t.Error("fingerprint should differ when value order differs")
		}
	})

	t.Run("absent value block equals empty origination and values", func(t *testing.T) {
		p := basePreference()
		p.Values = nil
		absent := tc.FingerprintRaw(p)

		direct := tc.Fingerprint(
			"TC_allow_inherited_group_changes", "Security", "Controls group inheritance",
			1, false, false, "Site", false, false, "", nil)
		if absent != direct {
			t.Errorf("absent values fingerprint = %s, want %s", absent, direct)
		}
	})

	t.Run("values do not bleed into neighboring fields", func(t *testing.T) {
		a := tc.Fingerprint("n", "c", "d", 0, false, false, "s", false, false, "o", []string{"x", "y"})
		b := tc.Fingerprint("n", "c", "d", 0, false, false, "s", false, false, "o", []string{"xy"})
		if a == b {
			t.Error("joined values should be distinguishable from concatenated values")
		}
	})
}
