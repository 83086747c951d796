package arabic

import "testing"

func TestNormalizeUnifiesLetterVariants(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"alef hamza above", "أخبار", "اخبار"},
		{"alef hamza below", "إخبار", "اخبار"},
		{"alef madda", "آخر", "اخر"},
		{"teh marbuta", "مدينة", "مدينه"},
		{"alef maqsura", "مستشفى", "مستشفي"},
		{"tatweel stripped", "خـــبر", "خبر"},
		{"diacritics stripped", "مُحَمَّد", "محمد"},
		{"trim and lowercase", "  Sudan News  ", "sudan news"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"أخبار السودان اليوم", "مُدينَةُ الخرطوم", "plain ascii"}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestContentHashEqualAcrossVariants(t *testing.T) {
	t.Parallel()

	a := ContentHash("أخبار السودان", "تقريرٌ عن مدينة الخرطوم")
	b := ContentHash("اخبار السودان", "تقرير عن مدينه الخرطوم")
	if a != b {
		t.Fatalf("expected variant spellings to hash identically: %s vs %s", a, b)
	}

	c := ContentHash("اخبار السودان", "تقرير مختلف تماما")
	if a == c {
		t.Fatalf("different content must not collide")
	}
}

func TestContentHashSeparatesHeadlineAndDescription(t *testing.T) {
	t.Parallel()

	a := ContentHash("ab", "c")
	b := ContentHash("a", "bc")
	if a == b {
		t.Fatalf("headline/description boundary must affect the hash")
	}
}
