// Package pathmap derives the per-title subdivision maps from agency
// document references. TitlePathMap drives XML extraction; TitleAgencyMap is
// the reverse lookup from an extracted (title, type, code) to the owning
// agencies.
package pathmap

import (
	"strings"

	"github.com/rs/zerolog/log"

	"ecfr-wordstats/internal/ecfr"
	"ecfr-wordstats/internal/jsonio"
)

// TitlePathMap: title number -> subdivision type -> codes to extract.
type TitlePathMap map[int]map[string][]string

// AgencyInfo identifies an owning agency in reporting artifacts. Field names
// follow the serialized map format (id / sn / dn).
type AgencyInfo struct {
	ID          string `json:"id"`
	ShortName   string `json:"sn"`
	DisplayName string `json:"dn"`
}

// TitleAgencyMap: title number -> subdivision type -> code -> agencies.
type TitleAgencyMap map[int]map[string]map[string][]AgencyInfo

// Build walks every agency's document references and produces both maps in
// one pass. References without a usable title number are logged and skipped.
func Build(agencies []ecfr.Agency) (TitlePathMap, TitleAgencyMap) {
	paths := TitlePathMap{}
	owners := TitleAgencyMap{}

	for _, a := range agencies {
		info := AgencyInfo{
			ID:          a.Slug,
			ShortName:   shortName(a),
			DisplayName: a.DisplayName,
		}
		for _, ref := range a.CFRReferences {
			if ref.Title == 0 {
				log.Warn().Str("agency", a.Slug).Msg("document reference without a valid title, skipping")
				continue
			}
			for typ, code := range ref.Selectors {
				addPath(paths, ref.Title, typ, code)
				addOwner(owners, ref.Title, typ, code, info)
			}
		}
	}
	return paths, owners
}

// SelectorFor returns the extraction selector for one title, or nil if the
// title is not covered by any agency reference.
func (m TitlePathMap) SelectorFor(title int) map[string][]string {
	return m[title]
}

// Agencies returns the owners of a (title, type, code) triple, nil if the
// triple is unmapped.
func (m TitleAgencyMap) Agencies(title int, typ, code string) []AgencyInfo {
	byType, ok := m[title]
	if !ok {
		return nil
	}
	byCode, ok := byType[typ]
	if !ok {
		return nil
	}
	return byCode[code]
}

func (m TitlePathMap) Save(path string) error { return jsonio.Save(path, m) }

func (m TitleAgencyMap) Save(path string) error { return jsonio.Save(path, m) }

func LoadPathMap(path string) (TitlePathMap, error) {
	var m TitlePathMap
	if err := jsonio.Load(path, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func LoadAgencyMap(path string) (TitleAgencyMap, error) {
	var m TitleAgencyMap
	if err := jsonio.Load(path, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func addPath(m TitlePathMap, title int, typ, code string) {
	byType, ok := m[title]
	if !ok {
		byType = map[string][]string{}
		m[title] = byType
	}
	for _, existing := range byType[typ] {
		if existing == code {
			return
		}
	}
	byType[typ] = append(byType[typ], code)
}

func addOwner(m TitleAgencyMap, title int, typ, code string, info AgencyInfo) {
	byType, ok := m[title]
	if !ok {
		byType = map[string]map[string][]AgencyInfo{}
		m[title] = byType
	}
	byCode, ok := byType[typ]
	if !ok {
		byCode = map[string][]AgencyInfo{}
		byType[typ] = byCode
	}
	for _, existing := range byCode[code] {
		if existing == info {
			return
		}
	}
	byCode[code] = append(byCode[code], info)
}

// shortName falls back to the initials of the display name's capitalized
// words when the upstream feed has no short name.
func shortName(a ecfr.Agency) string {
	if a.ShortName != "" {
		return a.ShortName
	}
	var b strings.Builder
	for _, word := range strings.Fields(a.DisplayName) {
		r := []rune(word)[0]
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
