package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// PathTable assigns short synthetic ids to file paths. It is injective and
// append-only: an id, once assigned, always names the same path.
type PathTable struct {
	byID   map[string]string
	byPath map[string]string
	order  []string // ids in assignment order
	next   int
}

// NewPathTable creates an empty table
func NewPathTable() *PathTable {
	return &PathTable{
		byID:   make(map[string]string),
		byPath: make(map[string]string),
	}
}

// Intern returns the id of path, assigning a new one the first time
func (t *PathTable) Intern(path string) string {
	if id, ok := t.byPath[path]; ok {
		return id
	}
	id := t.nextID()
	t.byID[id] = path
	t.byPath[path] = id
	t.order = append(t.order, id)
	return id
}

// Path translates an id back to its path
func (t *PathTable) Path(id string) (string, bool) {
	p, ok := t.byID[id]
	return p, ok
}

// ID returns the id already assigned to path
func (t *PathTable) ID(path string) (string, bool) {
	id, ok := t.byPath[path]
	return id, ok
}

// Len returns the number of paths
func (t *PathTable) Len() int {
	return len(t.order)
}

func (t *PathTable) nextID() string {
	for {
		id := "p" + strconv.Itoa(t.next)
		t.next++
		if _, taken := t.byID[id]; !taken {
			return id
		}
	}
}

type pathTableEntry struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

type pathTableFile struct {
	Version int              `json:"version"`
	Paths   []pathTableEntry `json:"paths"`
}

// MarshalJSON writes entries in assignment order
func (t *PathTable) MarshalJSON() ([]byte, error) {
	f := pathTableFile{Version: schemaV2, Paths: make([]pathTableEntry, len(t.order))}
	for i, id := range t.order {
		f.Paths[i] = pathTableEntry{ID: id, Path: t.byID[id]}
	}
	return json.Marshal(f)
}

// UnmarshalJSON rebuilds both directions and rejects non-injective tables
func (t *PathTable) UnmarshalJSON(data []byte) error {
	var f pathTableFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*t = *NewPathTable()
	for _, e := range f.Paths {
		if _, dup := t.byID[e.ID]; dup {
			return fmt.Errorf("%w: path id %q assigned twice", ErrCorrupt, e.ID)
		}
		if _, dup := t.byPath[e.Path]; dup {
			return fmt.Errorf("%w: path %q has two ids", ErrCorrupt, e.Path)
		}
		t.byID[e.ID] = e.Path
		t.byPath[e.Path] = e.ID
		t.order = append(t.order, e.ID)
	}
	t.next = len(t.order)
	return nil
}
