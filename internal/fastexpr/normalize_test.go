package fastexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_Separators(t *testing.T) {
	assert.Equal(t, "a=1;\nb=2;\nc=3", Normalize("a=1;   b=2;c=3"))
	assert.Equal(t, "a=1;\nb=2;", Normalize("\n a=1;\n\n b=2;  \n"))
	assert.Equal(t, "a=1;\nb=2", Normalize("a=1;\t b=2"))
}

func TestNormalize_KeywordInjection(t *testing.T) {
	assert.Contains(t, Normalize("winsorize(close, 3)"), "winsorize(close, std=3)")
	assert.Equal(t, "winsorize(close, std=3)", Normalize("winsorize(close, std=3)"))
	assert.Equal(t, "winsorize(close, std=3)", Normalize("winsorize(close,3)"))
	assert.Equal(t, "winsorize(close, std=3)", Normalize("winsorize(close,  3 )"))
	assert.Equal(t, "hump(x, hump=0.01)", Normalize("hump(x, 0.01)"))
}

func TestNormalize_Program(t *testing.T) {
	in := "a = winsorize(close, 4);\n  b = hump(a, 0.02);  \n"
	assert.Equal(t, "a = winsorize(close, std=4);\nb = hump(a, hump=0.02);", Normalize(in))
}

func TestFixKeywordArg(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"absent", "rank(close)", "rank(close)"},
		{"single argument", "winsorize(x)", "winsorize(x)"},
		{"nested parentheses", "winsorize(ts_mean(close, 5), 4)", "winsorize(ts_mean(close, 5), std=4)"},
		{"nested same function", "winsorize(winsorize(x, 2), 3)", "winsorize(winsorize(x, std=2), std=3)"},
		{"inside last argument", "winsorize(x, winsorize(y, 2))", "winsorize(x, std=winsorize(y, std=2))"},
		{"later occurrences", "a = winsorize(x, 2);\nb = winsorize(y, 3)", "a = winsorize(x, std=2);\nb = winsorize(y, std=3)"},
		{"spaced keyword", "winsorize(x, s t d=3)", "winsorize(x, s t d=3)"},
		{"identifier boundary", "my_winsorize(x, 2)", "my_winsorize(x, 2)"},
		{"boundary then call", "my_winsorize(x, 2) + winsorize(y, 2)", "my_winsorize(x, 2) + winsorize(y, std=2)"},
		{"unbalanced", "winsorize(x, 2", "winsorize(x, 2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FixKeywordArg(tc.in, "winsorize", "std="))
		})
	}
}

func TestNormalize_BothRulesNested(t *testing.T) {
	got := Normalize("hump(winsorize(ts_mean(close, 5), 4), 0.01)")
	assert.Equal(t, "hump(winsorize(ts_mean(close, 5), std=4), hump=0.01)", got)
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"a=1;   b=2;c=3",
		"winsorize(close, 3)",
		"a = winsorize(close, 4);\n  b = hump(a, 0.02);  \n",
		"hump(winsorize(ts_mean(close, 5), 4), 0.01)",
		"winsorize(x, winsorize(y, 2))",
		"winsorize(x, 2",
		"x = rank(close);;  y = -x;",
		"my_hump(a, 1); hump(b,2)",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalizer_Rules(t *testing.T) {
	var bare Normalizer
	assert.Equal(t, "winsorize(x, 3)", bare.Normalize("winsorize(x, 3)"))

	custom := NewNormalizer(KeywordRule{Func: "ts_decay_exp_window", Key: "factor="})
	assert.Equal(t, "ts_decay_exp_window(x, 10, factor=0.5)", custom.Normalize("ts_decay_exp_window(x, 10, 0.5)"))
	assert.Equal(t, "winsorize(x, 3)", custom.Normalize("winsorize(x, 3)"))
}
