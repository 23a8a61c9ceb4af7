package magic

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/log"
)

// cacheFile is the on-disk form of a table: the divisor range it was built
// for and the multiplier of every divisor, keyed by divisor.
type cacheFile struct {
	Kind     Kind                 `json:"kind"`
	Max      int                  `json:"max"`
	Divisors map[int64]multiplier `json:"divisors"`
}

type multiplier struct {
	Magic int64 `json:"magic"`
	Power int   `json:"power"`
}

func newCacheFile(t *Table) cacheFile {
	cf := cacheFile{Kind: t.Kind(), Max: t.Max(), Divisors: make(map[int64]multiplier, t.Len())}
	for _, e := range t.Entries() {
		cf.Divisors[e.Divisor] = multiplier{Magic: e.Magic, Power: e.Power}
	}
	return cf
}

// table replays the divisors in build order: by magnitude, a divisor before
// its negation.
func (cf cacheFile) table() *Table {
	divisors := slices.SortedFunc(maps.Keys(cf.Divisors), func(a, b int64) int {
		if c := cmp.Compare(abs(a), abs(b)); c != 0 {
			return c
		}
		return cmp.Compare(b, a)
	})
	t := newTable(cf.Kind, cf.Max)
	for _, d := range divisors {
		m := cf.Divisors[d]
		t.put(m.Magic, m.Power, d)
	}
	return t
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Store caches tables as JSON files below Dir. An empty Dir disables caching.
type Store struct {
	Dir    string
	Logger *log.Logger
}

// Path returns the cache file used for kind.
func (s *Store) Path(kind Kind) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_magic_map.json", kind))
}

// Load returns the table for kind covering at least [2, max). A cache built
// for a smaller range or one that cannot be read is rebuilt and rewritten.
func (s *Store) Load(kind Kind, max int) (*Table, error) {
	if err := checkRange(max); err != nil {
		return nil, err
	}
	if s.Dir != "" {
		t, err := s.read(kind)
		switch {
		case err == nil && t.Max() >= max:
			s.debug("loaded magic table", "kind", kind, "entries", t.Len(), "path", s.Path(kind))
			return t, nil
		case err == nil:
			s.debug("cached magic table too small", "kind", kind, "cached", t.Max(), "requested", max)
		case !errors.Is(err, os.ErrNotExist):
			s.warn("discarding magic table cache", "kind", kind, "err", err)
		}
	}

	s.debug("computing magic table", "kind", kind, "from", 2, "to", max)
	t, err := Build(kind, max)
	if err != nil {
		return nil, err
	}
	if s.Dir != "" {
		if err := s.Save(t); err != nil {
			s.warn("could not cache magic table", "kind", kind, "err", err)
		}
	}
	return t, nil
}

// Save writes t to its cache file.
func (s *Store) Save(t *Table) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	bts, err := json.Marshal(newCacheFile(t))
	if err != nil {
		return fmt.Errorf("marshal magic table: %w", err)
	}
	tmp := s.Path(t.Kind()) + ".tmp"
	if err := os.WriteFile(tmp, bts, 0o644); err != nil {
		return fmt.Errorf("write magic table: %w", err)
	}
	return os.Rename(tmp, s.Path(t.Kind()))
}

func (s *Store) read(kind Kind) (*Table, error) {
	bts, err := os.ReadFile(s.Path(kind))
	if err != nil {
		return nil, err
	}
	var cf cacheFile
	if err := json.Unmarshal(bts, &cf); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path(kind), err)
	}
	if cf.Kind != kind {
		return nil, fmt.Errorf("%s holds a %s table", s.Path(kind), cf.Kind)
	}
	return cf.table(), nil
}

func (s *Store) debug(msg string, kv ...any) {
	if s.Logger != nil {
		s.Logger.Debug(msg, kv...)
	}
}

func (s *Store) warn(msg string, kv ...any) {
	if s.Logger != nil {
		s.Logger.Warn(msg, kv...)
	}
}
