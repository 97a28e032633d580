// Package aggregate rolls persisted word-count records up into per-year,
// per-agency statistics: merged word frequencies (top-N), monthly and yearly
// word totals, rewritten to readable surface forms.
package aggregate

import (
	"sort"

	"github.com/rs/zerolog/log"

	"ecfr-wordstats/internal/pathmap"
	"ecfr-wordstats/internal/store"
)

// TopWordsLimit bounds top_words per (year, agency) after finalization.
const TopWordsLimit = 100

// AgencyYearStats accumulates one (year, agency) cell.
type AgencyYearStats struct {
	AgencyDN          string         `json:"agency_dn"`
	TopWords          map[string]int `json:"top_words"`
	MonthlyWordCounts map[string]int `json:"monthly_word_counts"`
	YearlyWordCount   int            `json:"yearly_word_count"`
}

// YearAgencyCounts: year -> agency short name -> stats.
type YearAgencyCounts map[string]map[string]*AgencyYearStats

// SurfaceLookup rewrites a stem to its display form. Satisfied by
// *normalize.TransformStore.
type SurfaceLookup interface {
	Preferred(stem string) string
}

type Aggregator struct {
	owners   pathmap.TitleAgencyMap
	surfaces SurfaceLookup
	counts   YearAgencyCounts
	dropped  int
}

func New(owners pathmap.TitleAgencyMap, surfaces SurfaceLookup) *Aggregator {
	return &Aggregator{owners: owners, surfaces: surfaces, counts: YearAgencyCounts{}}
}

// Add folds one record into the rollup. Records with no word statistics are
// skipped; records whose (title, type, code) has no owning agency are
// dropped rather than attributed arbitrarily.
func (a *Aggregator) Add(rec store.WordCountRecord) {
	if len(rec.Words) == 0 {
		return
	}

	total := 0
	surfaced := make(map[string]int, len(rec.Words))
	for stem, count := range rec.Words {
		total += count
		surfaced[a.surfaces.Preferred(stem)] += count
	}

	agencies := a.owners.Agencies(rec.TitleNumber, rec.Type, rec.Code)
	if len(agencies) == 0 {
		a.dropped++
		log.Warn().Int("title", rec.TitleNumber).Str("type", rec.Type).Str("code", rec.Code).
			Msg("word counts without owning agency, dropping from rollup")
		return
	}

	year := rec.VersionDate.Format("2006")
	month := rec.VersionDate.Format("01")

	for _, agency := range agencies {
		stats := a.cell(year, agency.ShortName)
		if stats.AgencyDN == "" {
			stats.AgencyDN = agency.DisplayName
		}
		for word, count := range surfaced {
			stats.TopWords[word] += count
		}
		stats.MonthlyWordCounts[month] += total
		stats.YearlyWordCount += total
	}
}

// Finalize truncates every cell's top_words to the top TopWordsLimit entries
// (count descending, ties by word ascending) and returns the rollup.
func (a *Aggregator) Finalize() YearAgencyCounts {
	for _, byAgency := range a.counts {
		for _, stats := range byAgency {
			if len(stats.TopWords) <= TopWordsLimit {
				continue
			}
			kept := map[string]int{}
			for _, wf := range TopN(stats.TopWords, TopWordsLimit) {
				kept[wf.Word] = wf.Frequency
			}
			stats.TopWords = kept
		}
	}
	if a.dropped > 0 {
		log.Info().Int("dropped_records", a.dropped).Msg("rollup finished with unattributed records")
	}
	return a.counts
}

func (a *Aggregator) cell(year, agency string) *AgencyYearStats {
	byAgency, ok := a.counts[year]
	if !ok {
		byAgency = map[string]*AgencyYearStats{}
		a.counts[year] = byAgency
	}
	stats, ok := byAgency[agency]
	if !ok {
		stats = &AgencyYearStats{
			TopWords:          map[string]int{},
			MonthlyWordCounts: map[string]int{},
		}
		byAgency[agency] = stats
	}
	return stats
}

// WordFreq is one ranked word for chart-facing artifacts.
type WordFreq struct {
	Word      string `json:"word"`
	Frequency int    `json:"frequency"`
}

// TopN ranks words by count descending, ties by word ascending, and keeps
// the first n.
func TopN(words map[string]int, n int) []WordFreq {
	ranked := make([]WordFreq, 0, len(words))
	for w, c := range words {
		ranked = append(ranked, WordFreq{Word: w, Frequency: c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Frequency != ranked[j].Frequency {
			return ranked[i].Frequency > ranked[j].Frequency
		}
		return ranked[i].Word < ranked[j].Word
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
