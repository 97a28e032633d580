package normalize

import (
	"errors"
	"io/fs"
	"strings"
	"sync"
	"unicode"

	"ecfr-wordstats/internal/jsonio"
)

// TransformStore is the WordTransformationMap: normalized form -> the ordered
// set of surface forms that produced it. The stem is the aggregation key;
// the surface forms are what reports display. The store is shared by all
// workers in a process, so every access holds the mutex, and SaveFile merges
// with whatever is already on disk rather than overwriting it.
type TransformStore struct {
	mu sync.Mutex
	m  map[string][]string
}

func NewTransformStore() *TransformStore {
	return &TransformStore{m: map[string][]string{}}
}

// Merge records that surface was transformed into norm. Surface forms are
// kept in first-seen order; duplicates are ignored.
func (s *TransformStore) Merge(norm, surface string) {
	if norm == "" || norm == surface {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(norm, surface)
}

func (s *TransformStore) add(norm, surface string) {
	for _, existing := range s.m[norm] {
		if existing == surface {
			return
		}
	}
	s.m[norm] = append(s.m[norm], surface)
}

// Lookup returns a copy of the surface forms recorded for norm.
func (s *TransformStore) Lookup(norm string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	forms := s.m[norm]
	if len(forms) == 0 {
		return nil
	}
	out := make([]string, len(forms))
	copy(out, forms)
	return out
}

// Preferred picks the display form for a normalized key: the first surface
// form with an uppercase letter and no period, else the first recorded form,
// else the key itself.
func (s *TransformStore) Preferred(norm string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	forms := s.m[norm]
	if len(forms) == 0 {
		return norm
	}
	for _, f := range forms {
		if strings.ContainsFunc(f, unicode.IsUpper) && !strings.Contains(f, ".") {
			return f
		}
	}
	return forms[0]
}

// LoadFile merges the on-disk map into the store. A missing file is fine.
func (s *TransformStore) LoadFile(path string) error {
	var disk map[string][]string
	if err := jsonio.Load(path, &disk); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for norm, forms := range disk {
		for _, f := range forms {
			s.add(norm, f)
		}
	}
	return nil
}

// SaveFile writes the union of the in-memory map and the current on-disk map
// back to path. Read-modify-write runs under the mutex and the write is
// temp-then-rename, so concurrent workers in one process cannot clobber each
// other and a crash cannot truncate the file.
func (s *TransformStore) SaveFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var disk map[string][]string
	if err := jsonio.Load(path, &disk); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	for norm, forms := range disk {
		for _, f := range forms {
			s.add(norm, f)
		}
	}
	return jsonio.Save(path, s.m)
}
