package lex

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Category names a class of extracted regions.
type Category string

const (
	// Noparse holds the contents of {{ noparse }} regions.
	Noparse Category = "noparse"
	// LoopedTags holds plain blocks waiting for the variable pass.
	LoopedTags Category = "looped_tags"
	// CallbackBlocks holds parameterised blocks and blocks left for callbacks.
	CallbackBlocks Category = "callback_blocks"
	// NestedLoopedTags holds same-named blocks nested inside a callback block.
	NestedLoopedTags Category = "nested_looped_tags"
	// ParamStr holds quoted literals while a parameter span is parsed.
	ParamStr Category = "param_str"
)

const tokenMark = "\x1alex:"

var tokenPattern = regexp.MustCompile(`\x1alex:([a-z_]+):([0-9a-f]+)\x1a`)

type record struct {
	category Category
	raw      string
}

// Store keeps extracted regions behind placeholder tokens. Every Extract
// allocates a fresh id, so identical regions get independent tokens. A record
// is removed by the Inject call that restores it.
//
// A Store is not safe for concurrent use.
type Store struct {
	records map[string]record
	counter uint64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string]record)}
}

// Extract stores raw under category and returns the token that stands for it.
func (s *Store) Extract(category Category, raw string) string {
	id := s.newID()
	s.records[id] = record{category: category, raw: raw}
	return tokenMark + string(category) + ":" + id + "\x1a"
}

// Inject replaces the tokens in text with the regions they stand for. With no
// categories every category is restored, otherwise only the given ones.
// Restored regions are not scanned again for tokens in the same call.
func (s *Store) Inject(text string, categories ...Category) string {
	if len(s.records) == 0 || !strings.Contains(text, tokenMark) {
		return text
	}
	used := make(map[string]struct{})
	out := tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		m := tokenPattern.FindStringSubmatch(token)
		category, id := Category(m[1]), m[2]
		if !wants(category, categories) {
			return token
		}
		rec, ok := s.records[id]
		if !ok || rec.category != category {
			return token
		}
		used[id] = struct{}{}
		return rec.raw
	})
	for id := range used {
		delete(s.records, id)
	}
	return out
}

// Discard drops the records whose tokens appear in text without restoring
// them. Records of other tokens stay pending.
func (s *Store) Discard(text string, categories ...Category) {
	for _, m := range tokenPattern.FindAllStringSubmatch(text, -1) {
		category, id := Category(m[1]), m[2]
		if !wants(category, categories) {
			continue
		}
		if rec, ok := s.records[id]; ok && rec.category == category {
			delete(s.records, id)
		}
	}
}

// Len returns the number of pending records in the given categories, or in
// all categories when none are given.
func (s *Store) Len(categories ...Category) int {
	if len(categories) == 0 {
		return len(s.records)
	}
	n := 0
	for _, rec := range s.records {
		if wants(rec.category, categories) {
			n++
		}
	}
	return n
}

// Reset drops every pending record.
func (s *Store) Reset() {
	s.records = make(map[string]record)
}

// newID combines a v7 UUID (millisecond time and random bits) with a
// per-store counter.
func (s *Store) newID() string {
	s.counter++
	u, err := uuid.NewV7()
	if err != nil {
		u = uuid.New()
	}
	return strings.ReplaceAll(u.String(), "-", "") + strconv.FormatUint(s.counter, 16)
}

func wants(category Category, categories []Category) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if c == category {
			return true
		}
	}
	return false
}

func isToken(s string) bool {
	return strings.HasPrefix(s, tokenMark) && tokenPattern.MatchString(s)
}
