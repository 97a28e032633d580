// Package extract selects subdivision text out of full-title CFR XML.
// CFR documents mark subdivisions with DIV elements carrying TYPE="CHAPTER"
// and N="I" style attributes; the selector decides which (type, code) pairs
// to gather.
package extract

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

type capture struct {
	typ   string
	code  string
	depth int
	seq   int
	buf   strings.Builder
}

// Subdivisions walks every element in document order and gathers the full
// descendant text of each element whose TYPE attribute (lowercased) is a
// selector key and whose N attribute is in that key's code set. The result
// has an entry pre-created for every requested type, so an empty inner map
// means "requested but not present in this document".
//
// When the same (type, code) matches more than once, the match that starts
// last wins, mirroring a document-order assignment.
//
// A malformed document returns a nil result and the parse error; callers
// must treat that as a failure, not as an empty document.
func Subdivisions(xmlBytes []byte, selector map[string][]string) (map[string]map[string]string, error) {
	codes := make(map[string]map[string]bool, len(selector))
	result := make(map[string]map[string]string, len(selector))
	for typ, values := range selector {
		set := make(map[string]bool, len(values))
		for _, v := range values {
			set[v] = true
		}
		codes[typ] = set
		result[typ] = map[string]string{}
	}

	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	dec.Strict = false

	var active []*capture
	assigned := map[string]map[string]int{}
	depth := 0
	seq := 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if typ, code, ok := matchElement(t, codes); ok {
				seq++
				active = append(active, &capture{typ: typ, code: code, depth: depth, seq: seq})
			}
		case xml.CharData:
			if len(active) > 0 {
				s := string(t)
				for _, c := range active {
					c.buf.WriteString(s)
				}
			}
		case xml.EndElement:
			if n := len(active); n > 0 && active[n-1].depth == depth {
				c := active[n-1]
				active = active[:n-1]
				slot := assigned[c.typ]
				if slot == nil {
					slot = map[string]int{}
					assigned[c.typ] = slot
				}
				if prev, ok := slot[c.code]; !ok || c.seq > prev {
					slot[c.code] = c.seq
					result[c.typ][c.code] = strings.TrimSpace(c.buf.String())
				}
			}
			depth--
		}
	}
	return result, nil
}

// matchElement applies the (TYPE, N) predicate: both attributes must be
// present by their exact names; the TYPE value matches case-insensitively,
// the N value exactly.
func matchElement(el xml.StartElement, codes map[string]map[string]bool) (typ, code string, ok bool) {
	var typeVal, nVal string
	var hasType, hasN bool
	for _, a := range el.Attr {
		switch a.Name.Local {
		case "TYPE":
			typeVal, hasType = a.Value, true
		case "N":
			nVal, hasN = a.Value, true
		}
	}
	if !hasType || !hasN {
		return "", "", false
	}
	typ = strings.ToLower(typeVal)
	set, ok := codes[typ]
	if !ok || !set[nVal] {
		return "", "", false
	}
	return typ, nVal, true
}
