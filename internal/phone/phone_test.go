package phone

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+15551234567", "+15551234567"},
		{"(555) 123-4567", "+15551234567"},
		{"555-123-4567", "+15551234567"},
		{"5551234567", "+15551234567"},
		{" +1 555 123 4567 ", "+15551234567"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalize_UnparseableKeepsDigits(t *testing.T) {
	// Too short to be a real number; still usable as a lookup key.
	if got := Normalize("12345"); got != "12345" {
		t.Errorf("Normalize(12345) = %q", got)
	}
}
