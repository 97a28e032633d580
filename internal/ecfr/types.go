package ecfr

import (
	"encoding/json"
	"strconv"
)

type Title struct {
	Number          int    `json:"number"`
	Name            string `json:"name"`
	LatestAmendedOn string `json:"latest_amended_on"`
	LatestIssueDate string `json:"latest_issue_date"`
	UpToDateAsOf    string `json:"up_to_date_as_of"`
	Reserved        bool   `json:"reserved"`
}

type Agency struct {
	Name          string              `json:"name"`
	ShortName     string              `json:"short_name"`
	DisplayName   string              `json:"display_name"`
	SortableName  string              `json:"sortable_name"`
	Slug          string              `json:"slug"`
	Children      []Agency            `json:"children"`
	CFRReferences []DocumentReference `json:"cfr_references"`
}

// FlattenAgencies expands the agency tree depth-first: each parent is
// followed by its children, recursively. Child agencies carry their own
// document references and count as agencies in their own right.
func FlattenAgencies(agencies []Agency) []Agency {
	var flat []Agency
	for _, a := range agencies {
		children := a.Children
		a.Children = nil
		flat = append(flat, a)
		flat = append(flat, FlattenAgencies(children)...)
	}
	return flat
}

// TitleVersion is one entry of a title's content_versions feed.
type TitleVersion struct {
	Date          string `json:"date"`
	AmendmentDate string `json:"amendment_date"`
	IssueDate     string `json:"issue_date"`
	Identifier    string `json:"identifier"`
	Name          string `json:"name"`
	Part          string `json:"part"`
	Substantive   bool   `json:"substantive"`
	Removed       bool   `json:"removed"`
	Subpart       string `json:"subpart"`
	Type          string `json:"type"`
}

// DocumentReference is a single cfr_references row: a title number plus
// subdivision selectors (chapter, subtitle, part, ...). The selector keys are
// open-ended, so decoding keeps every scalar field other than "title".
// A reference whose title is missing or uncoercible decodes with Title == 0.
type DocumentReference struct {
	Title     int
	Selectors map[string]string

	raw json.RawMessage
}

func (r *DocumentReference) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	r.raw = append(r.raw[:0], data...)
	r.Title = 0
	r.Selectors = map[string]string{}
	for key, val := range fields {
		if key == "title" {
			r.Title = coerceInt(val)
			continue
		}
		if s, ok := coerceString(val); ok {
			r.Selectors[key] = s
		}
	}
	return nil
}

// MarshalJSON round-trips the upstream document so persisted agency docs keep
// every field the API sent.
func (r DocumentReference) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	fields := make(map[string]any, len(r.Selectors)+1)
	fields["title"] = r.Title
	for k, v := range r.Selectors {
		fields[k] = v
	}
	return json.Marshal(fields)
}

func coerceInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case string:
		n, err := strconv.Atoi(x)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func coerceString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10), true
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		// nulls, arrays and objects are not subdivision selectors
		return "", false
	}
}
