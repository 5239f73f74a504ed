package client

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_SetValidation(t *testing.T) {
	tests := []struct {
		key   string
		value interface{}
		valid bool
	}{
		{"name", "Ann", true},
		{"age", 42, true},
		{"nested", map[string]interface{}{"a": 1}, true},
		{"", "x", false},
		{"_id", "users/1", true},
		{"_id", "users", false},
		{"_id", "/1", false},
		{"_id", "users/", false},
		{"_id", 12, false},
		{"_key", "abc-1", true},
		{"_key", "", false},
		{"_key", "a/b", false},
		{"_key", strings.Repeat("k", 254), true},
		{"_key", strings.Repeat("k", 255), false},
		{"_key", 7, false},
		{"_rev", "_aBc", true},
		{"_rev", 3, false},
	}

	for _, tt := range tests {
		d := NewDocument()
		err := d.Set(tt.key, tt.value)
		if tt.valid {
			if err != nil {
				t.Errorf("Set(%q, %v): expected no error, got %v", tt.key, tt.value, err)
			}
			continue
		}
		if !IsClientError(err, CodeInvalidDocument) {
			t.Errorf("Set(%q, %v): expected E_INVALID_DOCUMENT, got %v", tt.key, tt.value, err)
		}
		if d.Has(tt.key) {
			t.Errorf("Set(%q, %v): rejected value was stored", tt.key, tt.value)
		}
	}
}

func TestDocument_OrderAndAccessors(t *testing.T) {
	d := NewDocument()
	require.NoError(t, d.Set("z", 1))
	require.NoError(t, d.Set("_key", "k1"))
	require.NoError(t, d.Set("a", "x"))
	require.NoError(t, d.Set("z", 2))

	assert.Equal(t, []string{"z", "_key", "a"}, d.Keys())
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, 2, d.Get("z"))
	assert.Nil(t, d.Get("missing"))
	assert.Equal(t, "k1", d.Key())
	assert.Equal(t, "", d.ID())
	assert.Equal(t, "", d.Collection())

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `{"z":2,"_key":"k1","a":"x"}`, string(data))

	d.Unset("_key")
	d.Unset("missing")
	assert.Equal(t, []string{"z", "a"}, d.Keys())
	assert.False(t, d.Has("_key"))
}

func TestDocument_FromMap(t *testing.T) {
	d, err := NewDocumentFromMap(map[string]interface{}{
		"_id": "users/1", "_key": "1", "_rev": "r1", "name": "Ann",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "_key", "_rev", "name"}, d.Keys())
	assert.Equal(t, "users", d.Collection())
	assert.Equal(t, "r1", d.Rev())

	want := map[string]interface{}{"_key": "1", "name": "Ann"}
	if diff := cmp.Diff(want, d.ForWrite()); diff != "" {
		t.Errorf("ForWrite mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, d.Has("_id"), "ForWrite must not modify the document")

	_, err = NewDocumentFromMap(map[string]interface{}{"_key": "a/b"})
	assert.True(t, IsClientError(err, CodeInvalidDocument))
}

func TestDocument_UnmarshalJSON(t *testing.T) {
	var d Document
	require.NoError(t, json.Unmarshal([]byte(`{"_key":"k","b":[1,2],"a":null}`), &d))
	assert.Equal(t, []string{"_key", "a", "b"}, d.Keys())
	assert.True(t, d.Has("a"))

	var bad Document
	err := json.Unmarshal([]byte(`{"_id":"nocollection"}`), &bad)
	assert.Error(t, err)
}

func TestEdge(t *testing.T) {
	e, err := NewEdge("users/1", "users/2")
	require.NoError(t, err)
	assert.Equal(t, "users/1", e.From())
	assert.Equal(t, "users/2", e.To())

	require.NoError(t, e.Set("since", 2020))
	assert.True(t, IsClientError(e.Set("_from", "bad"), CodeInvalidDocument))
	assert.True(t, IsClientError(e.Set("_to", 5), CodeInvalidDocument))
	assert.Equal(t, "users/1", e.From())

	_, err = NewEdge("", "users/2")
	assert.True(t, IsClientError(err, CodeInvalidDocument))

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Equal(t, `{"_from":"users/1","_to":"users/2","since":2020}`, string(data))

	var decoded Edge
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "users/2", decoded.To())
	assert.Equal(t, float64(2020), decoded.Get("since"))

	_, err = NewEdgeFromMap(map[string]interface{}{"_from": "users/1", "_to": "nope"})
	assert.True(t, IsClientError(err, CodeInvalidDocument))
}
