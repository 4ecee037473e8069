package harvest

import "testing"

func TestClassifySector(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://www.irs.gov/pub/form.pdf":        "government",
		"https://forms.gov.in/apply.pdf":          "government",
		"https://WWW.USCIS.GOV/i-90.pdf":          "government",
		"https://myhealthplan.com/claim.pdf":      "health",
		"https://www.hhs.state.tx.us/form.pdf":    "health",
		"https://registrar.stanford.edu/form.pdf": "education",
		"https://example.com/form.pdf":            "unknown",
		"://bad-url":                              "unknown",
		"https://governance.example.org/f.pdf":    "unknown",
		"https://sub.education.example.com/a.pdf": "education",
	}
	for raw, want := range cases {
		if got := ClassifySector(raw); got != want {
			t.Fatalf("ClassifySector(%q) = %q, want %q", raw, got, want)
		}
	}
}
