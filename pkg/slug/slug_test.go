package slug

import "testing"

func TestFrom(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Anna Reyes", "anna-reyes"},
		{"Éowyn of Rohan", "eowyn-of-rohan"},
		{"  Harbor   District ", "harbor-district"},
		{"Scene #12: Rooftop!", "scene-12-rooftop"},
		{"---", ""},
	}
	for _, c := range cases {
		if got := From(c.in); got != c.want {
			t.Errorf("From(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("Íris  Thórn") != "iris thorn" {
		t.Errorf("Normalize = %q", Normalize("Íris  Thórn"))
	}
	if Normalize("ANNA reyes") != Normalize("Anna Reyes") {
		t.Error("case fold mismatch")
	}
}
