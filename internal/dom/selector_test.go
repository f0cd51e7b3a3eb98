package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuerySelector(t *testing.T) {
	d := New()
	require.NoError(t, d.SetInnerHTML(HandleBody, `
		<div id="app" class="ember-application">
			<ul class="list"><li class="a">1</li><li class="b" data-k="v-1">2</li></ul>
			<p>text</p>
		</div>
		<meta name="description">`))

	byID := d.ElementByID("app")
	require.NotZero(t, byID)
	info, _ := d.Info(byID)
	assert.Equal(t, "DIV", info.Name)
	assert.Zero(t, d.ElementByID("missing"))

	cases := []struct {
		sel  string
		want int
	}{
		{"li", 2},
		{"ul > li", 2},
		{"div li.b", 1},
		{"#app > li", 0},
		{"li.a + li", 1},
		{"li.a ~ li.b", 1},
		{"[data-k|=v]", 1},
		{"[data-k^=v]", 1},
		{"li[data-k=x]", 0},
		{".ember-application p, meta", 2},
		{"*", 6},
	}
	for _, tc := range cases {
		got, err := d.QuerySelectorAll(HandleBody, tc.sel)
		require.NoError(t, err)
		assert.Len(t, got, tc.want, tc.sel)
	}

	first, err := d.QuerySelector(HandleDocument, "li")
	require.NoError(t, err)
	text, _ := d.TextContent(first)
	assert.Equal(t, "1", text)

	ok, err := d.Matches(first, "ul .a")
	require.NoError(t, err)
	assert.True(t, ok)
}
