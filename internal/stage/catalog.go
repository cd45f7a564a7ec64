package stage

import (
	"fmt"
	"regexp"
	"sort"
)

// Stage is a single game level. Stages form one linear chain per leading letter.
type Stage struct {
	ID     int    `json:"id"`
	Code   string `json:"code"`
	NextID *int   `json:"next_stage_id,omitempty"`
}

const (
	Groups   = "ABCDE"
	PerGroup = 5
)

var codePattern = regexp.MustCompile(`^[A-E][1-5]$`)

// ValidCode reports whether code has the two-character stage shape (A1..E5).
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// Seed returns the pre-seeded stage set: A1..A5, B1..B5, ... E1..E5 with ids
// assigned in that order and each stage linked to the next one in its group.
func Seed() []Stage {
	stages := make([]Stage, 0, len(Groups)*PerGroup)
	id := 1
	for _, group := range Groups {
		for i := 1; i <= PerGroup; i++ {
			st := Stage{ID: id, Code: fmt.Sprintf("%c%d", group, i)}
			if i < PerGroup {
				next := id + 1
				st.NextID = &next
			}
			stages = append(stages, st)
			id++
		}
	}
	return stages
}

// Catalog is an immutable index over the seeded stages.
type Catalog struct {
	ordered []Stage
	byCode  map[string]Stage
	byID    map[int]Stage
}

// NewCatalog indexes stages and checks that codes and ids are unique and that
// every successor reference points at a known stage.
func NewCatalog(stages []Stage) (*Catalog, error) {
	c := &Catalog{
		ordered: make([]Stage, 0, len(stages)),
		byCode:  make(map[string]Stage, len(stages)),
		byID:    make(map[int]Stage, len(stages)),
	}
	for _, st := range stages {
		if _, dup := c.byCode[st.Code]; dup {
			return nil, fmt.Errorf("duplicate stage code %q", st.Code)
		}
		if _, dup := c.byID[st.ID]; dup {
			return nil, fmt.Errorf("duplicate stage id %d", st.ID)
		}
		c.byCode[st.Code] = st
		c.byID[st.ID] = st
		c.ordered = append(c.ordered, st)
	}
	for _, st := range c.ordered {
		if st.NextID == nil {
			continue
		}
		if _, ok := c.byID[*st.NextID]; !ok {
			return nil, fmt.Errorf("stage %s points at unknown successor %d", st.Code, *st.NextID)
		}
	}
	sort.Slice(c.ordered, func(i, j int) bool { return c.ordered[i].Code < c.ordered[j].Code })
	return c, nil
}

// Default returns the catalog built from Seed.
func Default() *Catalog {
	c, err := NewCatalog(Seed())
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Lookup(code string) (Stage, bool) {
	st, ok := c.byCode[code]
	return st, ok
}

func (c *Catalog) ByID(id int) (Stage, bool) {
	st, ok := c.byID[id]
	return st, ok
}

// Next returns the successor of code in its chain. Terminal stages have none.
func (c *Catalog) Next(code string) (Stage, bool) {
	st, ok := c.byCode[code]
	if !ok || st.NextID == nil {
		return Stage{}, false
	}
	return c.ByID(*st.NextID)
}

// Stages returns all stages ordered by code.
func (c *Catalog) Stages() []Stage {
	out := make([]Stage, len(c.ordered))
	copy(out, c.ordered)
	return out
}

func (c *Catalog) Len() int {
	return len(c.ordered)
}
