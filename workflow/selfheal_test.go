// ABOUTME: Tests for failure signature detection in execution logs.
package workflow

import "testing"

func TestHasFailureSignature(t *testing.T) {
	cases := []struct {
		logs string
		want string
	}{
		{"Traceback (most recent call last):\n  File ...", "Traceback"},
		{"ValueError: could not convert string to float", "Error:"},
		{"builtins.Exception: boom", "Exception:"},
		{"KeyError: 'bmi'", "Error:"},
		{"SyntaxError: invalid syntax", "Error:"},
		{"all 42 rows processed", ""},
		{"", ""},
		{"accuracy: 0.91\nf1: 0.88", ""},
	}
	for _, c := range cases {
		sig, found := HasFailureSignature(c.logs)
		if c.want == "" {
			if found {
				t.Errorf("%q: unexpected signature %q", c.logs, sig)
			}
			continue
		}
		if !found {
			t.Errorf("%q: expected a signature", c.logs)
		} else if sig != c.want {
			t.Errorf("%q: got %q, want %q", c.logs, sig, c.want)
		}
	}
}

func TestSignatureScanIsSubstringMatch(t *testing.T) {
	// Signatures match anywhere in the output, including mid-line.
	if _, found := HasFailureSignature("step 3: KeyError while indexing"); !found {
		t.Error("expected mid-line match")
	}
}
