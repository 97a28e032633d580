package aggregate

import (
	"fmt"
	"path/filepath"
	"sort"

	"ecfr-wordstats/internal/jsonio"
)

// Artifact file names under the output directory.
const (
	TopWordsFile      = "year_agency_top_words.json"
	MonthlyYearlyFile = "monthly_yearly_counts.json"
	Top10File         = "top_10_words.json"
	StackedFile       = "d3_stacked_data.json"
	ChartFile         = "agency_chart_data.json"
)

type monthlyYearly struct {
	MonthlyWordCounts map[string]int `json:"monthly_word_counts"`
	YearlyWordCount   int            `json:"yearly_word_count"`
}

type top10 struct {
	Top10Words map[string]int `json:"top_10_words"`
}

type stackedAgency struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type stackedYear struct {
	Year     string          `json:"year"`
	Agencies []stackedAgency `json:"agencies"`
}

type chartRow struct {
	Year     string     `json:"year"`
	Agency   string     `json:"agency"`
	TopWords []WordFreq `json:"top_words"`
}

// WriteArtifacts renders the rollup into every reporting file the charts
// consume.
func WriteArtifacts(dir string, counts YearAgencyCounts) error {
	artifacts := map[string]any{
		TopWordsFile:      counts,
		MonthlyYearlyFile: monthlyYearlyView(counts),
		Top10File:         top10View(counts),
		StackedFile:       stackedView(counts),
		ChartFile:         chartView(counts),
	}
	for name, v := range artifacts {
		if err := jsonio.Save(filepath.Join(dir, name), v); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func monthlyYearlyView(counts YearAgencyCounts) map[string]map[string]monthlyYearly {
	out := map[string]map[string]monthlyYearly{}
	for year, byAgency := range counts {
		out[year] = map[string]monthlyYearly{}
		for agency, stats := range byAgency {
			out[year][agency] = monthlyYearly{
				MonthlyWordCounts: stats.MonthlyWordCounts,
				YearlyWordCount:   stats.YearlyWordCount,
			}
		}
	}
	return out
}

func top10View(counts YearAgencyCounts) map[string]map[string]top10 {
	out := map[string]map[string]top10{}
	for year, byAgency := range counts {
		out[year] = map[string]top10{}
		for agency, stats := range byAgency {
			words := map[string]int{}
			for _, wf := range TopN(stats.TopWords, 10) {
				words[wf.Word] = wf.Frequency
			}
			out[year][agency] = top10{Top10Words: words}
		}
	}
	return out
}

func stackedView(counts YearAgencyCounts) []stackedYear {
	out := make([]stackedYear, 0, len(counts))
	for year, byAgency := range counts {
		sy := stackedYear{Year: year}
		for agency, stats := range byAgency {
			sy.Agencies = append(sy.Agencies, stackedAgency{Name: agency, Count: stats.YearlyWordCount})
		}
		sort.Slice(sy.Agencies, func(i, j int) bool { return sy.Agencies[i].Name < sy.Agencies[j].Name })
		out = append(out, sy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

func chartView(counts YearAgencyCounts) []chartRow {
	var out []chartRow
	for year, byAgency := range counts {
		for agency, stats := range byAgency {
			out = append(out, chartRow{
				Year:     year,
				Agency:   agency,
				TopWords: TopN(stats.TopWords, 10),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Agency < out[j].Agency
	})
	return out
}
