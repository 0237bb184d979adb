package identity

import "testing"

func TestParseNormalizesNumericStrings(t *testing.T) {
	first, err := Parse("42")
	if err != nil {
		t.Fatalf("Parse(\"42\"): %v", err)
	}
	second, err := Parse(" 42 ")
	if err != nil {
		t.Fatalf("Parse(\" 42 \"): %v", err)
	}

	if first != second {
		t.Fatalf("expected equal identities, got %q and %q", first, second)
	}
	if first != FromInt64(42) {
		t.Fatalf("expected parsed form to equal FromInt64, got %q", first)
	}
	if first.Int64() != 42 {
		t.Fatalf("expected Int64 42, got %d", first.Int64())
	}
}

func TestParseRejectsInvalidIdentifiers(t *testing.T) {
	for _, raw := range []string{"", "  ", "abc", "-1", "0", "12.5"} {
		if _, err := Parse(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestIDsAreUsableAsMapKeys(t *testing.T) {
	seen := map[ID]int{}
	seen[FromInt64(7)]++
	parsed, _ := Parse("7")
	seen[parsed]++

	if len(seen) != 1 || seen[FromInt64(7)] != 2 {
		t.Fatalf("expected one key counted twice, got %v", seen)
	}
}
