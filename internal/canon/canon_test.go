package canon

import "testing"

func TestKeyCollapsesWhitespace(t *testing.T) {
	got := Key("  삼성   전자  ")
	if got != "삼성 전자" {
		t.Errorf("expected '삼성 전자', got %q", got)
	}
}

func TestKeyRemovesInvisibleCharacters(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"삼성 전자", "삼성 전자"},
		{"삼성​전자", "삼성전자"},
		{"\ufeff삼성전자", "삼성전자"},
		{"LG\t\t화학", "LG 화학"},
	}
	for _, c := range cases {
		if got := Key(c.in); got != c.want {
			t.Errorf("Key(%q) = %q, expected %q", c.in, got, c.want)
		}
	}
}

func TestKeyAppliesNFKC(t *testing.T) {
	// Fullwidth Latin compatibility forms compose to ASCII under NFKC.
	if got := Key("ＳＫ하이닉스"); got != "SK하이닉스" {
		t.Errorf("expected 'SK하이닉스', got %q", got)
	}
	// Decomposed Hangul jamo compose to precomposed syllables.
	if got := Key("한국"); got != "한국" {
		t.Errorf("expected '한국', got %q", got)
	}
}

func TestKeyIdempotent(t *testing.T) {
	inputs := []string{
		"  삼성   전자  ",
		"ＳＫ하이닉스",
		"현대 자동차",
		"",
		"plain ascii",
	}
	for _, in := range inputs {
		once := Key(in)
		if twice := Key(once); twice != once {
			t.Errorf("Key not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestKeyEmpty(t *testing.T) {
	if got := Key("   "); got != "" {
		t.Errorf("expected empty key, got %q", got)
	}
}

func TestEqual(t *testing.T) {
	if !Equal("삼성  전자", "삼성 전자") {
		t.Error("expected whitespace variants to compare equal")
	}
	if Equal("삼성전자", "LG전자") {
		t.Error("expected different companies to compare unequal")
	}
}
