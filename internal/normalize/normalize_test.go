package normalize

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountWordsHappyPath(t *testing.T) {
	tr := NewTransformStore()
	n := New(tr)

	// "Fishing", "fished" and "fishes" all stem to "fish"; "1999" fails the
	// numeric filter; "a" and "the" are stop-words.
	counts := n.CountWords("Fishing fished fishes 1999 a the")
	require.Equal(t, map[string]int{"fish": 3}, counts)

	forms := tr.Lookup("fish")
	require.NotEmpty(t, forms)
	for _, f := range forms {
		require.Equal(t, "fish", Stem(strings.ToLower(f)))
	}
}

func TestCountWordsDeterministic(t *testing.T) {
	text := "Regulations require Fishing vessels; fished waters\nremain regulated."
	a := New(NewTransformStore()).CountWords(text)
	b := New(NewTransformStore()).CountWords(text)
	require.Equal(t, a, b)
	require.NotEmpty(t, a)
}

func TestCountWordsNumericFilter(t *testing.T) {
	counts := New(NewTransformStore()).CountWords("section 1999 part42 x9ray genuine")
	for w := range counts {
		require.NotRegexp(t, `[0-9]`, w)
	}
	require.NotContains(t, counts, "part42")
}

func TestCountWordsLengthFilter(t *testing.T) {
	// "running" and "runs" stem to "run" (length 3) and must be dropped
	counts := New(NewTransformStore()).CountWords("running runs cat dog elephant")
	for w := range counts {
		require.Greater(t, len(w), 3)
	}
	require.NotContains(t, counts, "run")
}

func TestCountWordsPositiveCountsOnly(t *testing.T) {
	counts := New(NewTransformStore()).CountWords("whale whale whale rocket")
	for w, c := range counts {
		require.Positivef(t, c, "count for %q", w)
	}
	require.Equal(t, 3, counts["whale"])
}

func TestCountWordsEmptyInput(t *testing.T) {
	require.Empty(t, New(NewTransformStore()).CountWords(""))
	require.Empty(t, New(NewTransformStore()).CountWords("the a of 12 x"))
}

func TestTransformReversibility(t *testing.T) {
	tr := NewTransformStore()
	n := New(tr)
	counts := n.CountWords("Regulations regulated Fishing fisheries vessels compliance")
	require.NotEmpty(t, counts)
	for stem := range counts {
		forms := tr.Lookup(stem)
		require.NotEmptyf(t, forms, "no surface forms recorded for %q", stem)
		found := false
		for _, f := range forms {
			if Stem(strings.ToLower(stripPunctuation(f))) == stem {
				found = true
				break
			}
		}
		require.Truef(t, found, "no surface form of %q stems back to it (forms %v)", stem, forms)
	}
}

func TestPreferredSurfaceForm(t *testing.T) {
	tr := NewTransformStore()
	tr.Merge("fish", "fishing")
	tr.Merge("fish", "Fisheries")
	require.Equal(t, "Fisheries", tr.Preferred("fish"))

	tr2 := NewTransformStore()
	tr2.Merge("regul", "regulations")
	tr2.Merge("regul", "regulated")
	require.Equal(t, "regulations", tr2.Preferred("regul"))

	// uppercase forms with a period are disqualified
	tr3 := NewTransformStore()
	tr3.Merge("sec", "Sec.")
	tr3.Merge("sec", "Section")
	require.Equal(t, "Section", tr3.Preferred("sec"))

	// nothing recorded: the key displays as itself
	require.Equal(t, "fish", NewTransformStore().Preferred("fish"))
}

func TestTransformStoreMergeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "word_transformation_map.json")

	first := NewTransformStore()
	first.Merge("fish", "fishing")
	require.NoError(t, first.SaveFile(path))

	second := NewTransformStore()
	second.Merge("fish", "Fisheries")
	second.Merge("regul", "regulations")
	require.NoError(t, second.SaveFile(path))

	third := NewTransformStore()
	require.NoError(t, third.LoadFile(path))
	require.ElementsMatch(t, []string{"fishing", "Fisheries"}, third.Lookup("fish"))
	require.Equal(t, []string{"regulations"}, third.Lookup("regul"))
}

func TestLoadFileMissingIsFine(t *testing.T) {
	tr := NewTransformStore()
	require.NoError(t, tr.LoadFile(filepath.Join(t.TempDir(), "absent.json")))
}
