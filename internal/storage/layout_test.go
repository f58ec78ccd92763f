package storage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/code-connoisseur/pkg/types"
)

func TestPathTable(t *testing.T) {
	paths := NewPathTable()
	a := paths.Intern("src/a.ts")
	b := paths.Intern("src/b.ts")
	assert.Equal(t, a, paths.Intern("src/a.ts"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, paths.Len())

	data, err := json.Marshal(paths)
	require.NoError(t, err)

	restored := NewPathTable()
	require.NoError(t, json.Unmarshal(data, restored))
	p, ok := restored.Path(b)
	require.True(t, ok)
	assert.Equal(t, "src/b.ts", p)

	// ids keep growing after a reload
	c := restored.Intern("src/c.ts")
	assert.NotContains(t, []string{a, b}, c)
}

func TestPathTableRejectsNonInjective(t *testing.T) {
	for _, raw := range []string{
		`{"version":2,"paths":[{"id":"p0","path":"a"},{"id":"p0","path":"b"}]}`,
		`{"version":2,"paths":[{"id":"p0","path":"a"},{"id":"p1","path":"a"}]}`,
	} {
		err := json.Unmarshal([]byte(raw), NewPathTable())
		assert.ErrorIs(t, err, ErrCorrupt)
	}
}

func TestDecodeMetadataSchemas(t *testing.T) {
	paths := NewPathTable()
	id := paths.Intern("lib/util.py")

	tests := []struct {
		name string
		data string
		want string
	}{
		{"bare array", `[{"id":"x","path":"lib/old.py","kind":"function","name":"f","code":"def f(): pass"}]`, "lib/old.py"},
		{"version 1", `{"version":1,"entries":[{"id":"x","path":"lib/old.py","kind":"function","name":"f","code":"def f(): pass"}]}`, "lib/old.py"},
		{"no version", `{"entries":[{"id":"x","path":"lib/old.py","kind":"function","name":"f","code":"def f(): pass"}]}`, "lib/old.py"},
		{"version 2", `{"version":2,"entries":[{"id":"x","p":"` + id + `","t":"function","n":"f","c":"def f(): pass"}]}`, "lib/util.py"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := decodeMetadata([]byte(tt.data), paths)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "x", entries[0].ID)
			assert.Equal(t, types.ChunkMetadata{Path: tt.want, Kind: types.KindFunction, Name: "f", Code: "def f(): pass"}, entries[0].Metadata)
		})
	}
}

func TestDecodeMetadataErrors(t *testing.T) {
	_, err := decodeMetadata([]byte(`{"version":3,"entries":[]}`), NewPathTable())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = decodeMetadata([]byte(`{"version":2,"entries":[{"id":"x","p":"p9","t":"class","n":"C","c":""}]}`), NewPathTable())
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = decodeVectors([]byte(`not json`))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestCheckFormat(t *testing.T) {
	for version, wantErr := range map[string]error{
		"":      nil,
		"1.0.0": nil,
		"2.0.0": nil,
		"2.7.1": nil,
		"3.0.0": ErrUnsupportedFormat,
		"x.y":   ErrCorrupt,
	} {
		err := checkFormat(&types.IndexMetadata{Name: "i", FormatVersion: version})
		if wantErr == nil {
			assert.NoError(t, err, version)
		} else {
			assert.ErrorIs(t, err, wantErr, version)
		}
	}
}

func TestValidateIndexName(t *testing.T) {
	for _, name := range []string{"main", "feature-1", "v2.0", "A_b"} {
		assert.NoError(t, ValidateIndexName(name), name)
	}
	for _, name := range []string{"", ".hidden", "../up", "a/b", "with space"} {
		assert.ErrorIs(t, ValidateIndexName(name), ErrInvalidIndexName, name)
	}
}
