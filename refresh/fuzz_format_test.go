package refresh

import "testing"

// FuzzValidateFormat checks that acceptance implies the exact 64-char lowercase-hex shape.
func FuzzValidateFormat(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add(validToken)
	f.Add("0123456789ABCDEF0123456789abcdef0123456789abcdef0123456789abcdef")
	f.Add("!!!not-hex!!!")

	f.Fuzz(func(t *testing.T, input string) {
		if err := ValidateFormat(input); err != nil {
			return
		}
		if len(input) != TokenLength {
			t.Fatalf("accepted token of length %d", len(input))
		}
		for _, r := range input {
			if !('0' <= r && r <= '9') && !('a' <= r && r <= 'f') {
				t.Fatalf("accepted non-hex rune %q", r)
			}
		}
	})
}
