package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
		ok   bool
	}{
		{"whole object", `{"a":1}`, map[string]any{"a": float64(1)}, true},
		{"whole array", `[1,2]`, []any{float64(1), float64(2)}, true},
		{"fenced json", "Here you go:\n```json\n{\"scene\": \"orman\"}\n```\nEnjoy", map[string]any{"scene": "orman"}, true},
		{"fenced without tag", "```\n{\"b\": true}\n```", map[string]any{"b": true}, true},
		{"embedded braces", `Sure! {"x": {"y": 2}} hope it helps`, map[string]any{"x": map[string]any{"y": float64(2)}}, true},
		{"plain text", "Merhaba, nasılsın?", nil, false},
		{"broken braces", "{not json}", nil, false},
		{"empty", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := JSON(tt.in)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONRejectsInvalidCandidates(t *testing.T) {
	_, ok := JSON("```json\n{broken}\n```")
	require.False(t, ok)

	// The brace span is greedy and swallows the unterminated first object.
	got, ok := JSON("```json\n{\"a\":\n```\n{\"a\": 1}")
	require.False(t, ok)
	require.Nil(t, got)
}

func TestObject(t *testing.T) {
	obj, ok := Object("text {\"k\":\"v\"} text")
	require.True(t, ok)
	assert.Equal(t, "v", obj["k"])

	_, ok = Object("[1,2,3]")
	assert.False(t, ok)
}

func TestPretty(t *testing.T) {
	assert.Equal(t, "{\n  \"a\": 1\n}", Pretty(`{"a":1}`))
	assert.Equal(t, "not json", Pretty("not json"))
	assert.Equal(t, "{\n  \"url\": \"a&b\"\n}", PrettyValue(map[string]any{"url": "a&b"}))
}
