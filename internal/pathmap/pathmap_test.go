package pathmap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ecfr-wordstats/internal/ecfr"
)

func ref(t *testing.T, raw string) ecfr.DocumentReference {
	t.Helper()
	var r ecfr.DocumentReference
	require.NoError(t, r.UnmarshalJSON([]byte(raw)))
	return r
}

func TestBuildMaps(t *testing.T) {
	agencies := []ecfr.Agency{
		{
			Slug:        "agri",
			ShortName:   "USDA",
			DisplayName: "Department of Agriculture",
			CFRReferences: []ecfr.DocumentReference{
				ref(t, `{"title":7,"chapter":"I"}`),
				ref(t, `{"title":7,"chapter":"IX"}`),
				ref(t, `{"title":48,"chapter":4}`),
			},
		},
		{
			Slug:        "fish",
			DisplayName: "Fish and Wildlife Service",
			CFRReferences: []ecfr.DocumentReference{
				ref(t, `{"title":50,"chapter":"I"}`),
				ref(t, `{"title":"bogus","chapter":"II"}`), // skipped with a warning
			},
		},
	}

	paths, owners := Build(agencies)

	require.ElementsMatch(t, []string{"I", "IX"}, paths[7]["chapter"])
	require.Equal(t, []string{"4"}, paths[48]["chapter"])
	require.Equal(t, []string{"I"}, paths[50]["chapter"])
	require.Len(t, paths, 3)

	got := owners.Agencies(50, "chapter", "I")
	require.Len(t, got, 1)
	require.Equal(t, "fish", got[0].ID)
	// short-name fallback: initials of capitalized display-name words
	require.Equal(t, "FWS", got[0].ShortName)

	require.Nil(t, owners.Agencies(50, "chapter", "II"))
	require.Nil(t, owners.Agencies(12, "chapter", "I"))
}

func TestBuildDeduplicates(t *testing.T) {
	a := ecfr.Agency{
		Slug:        "agri",
		ShortName:   "USDA",
		DisplayName: "Department of Agriculture",
		CFRReferences: []ecfr.DocumentReference{
			ref(t, `{"title":7,"chapter":"I"}`),
			ref(t, `{"title":7,"chapter":"I","part":"210"}`),
		},
	}
	paths, owners := Build([]ecfr.Agency{a})
	require.Equal(t, []string{"I"}, paths[7]["chapter"])
	require.Equal(t, []string{"210"}, paths[7]["part"])
	require.Len(t, owners.Agencies(7, "chapter", "I"), 1)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	paths, owners := Build([]ecfr.Agency{{
		Slug:        "agri",
		ShortName:   "USDA",
		DisplayName: "Department of Agriculture",
		CFRReferences: []ecfr.DocumentReference{
			ref(t, `{"title":7,"chapter":"I"}`),
		},
	}})

	dir := t.TempDir()
	pathFile := filepath.Join(dir, "title_path_map.json")
	agencyFile := filepath.Join(dir, "title_agency_map.json")
	require.NoError(t, paths.Save(pathFile))
	require.NoError(t, owners.Save(agencyFile))

	gotPaths, err := LoadPathMap(pathFile)
	require.NoError(t, err)
	require.Equal(t, paths, gotPaths)

	gotOwners, err := LoadAgencyMap(agencyFile)
	require.NoError(t, err)
	require.Equal(t, owners, gotOwners)
}
