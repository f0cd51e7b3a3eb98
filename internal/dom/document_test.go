package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendEl(t *testing.T, d *Document, parent int, tag string) int {
	t.Helper()
	id := d.CreateElement(tag, "")
	require.NoError(t, d.InsertBefore(parent, id, 0))
	return id
}

func TestCaptureEmptyDocument(t *testing.T) {
	d := New()
	snap := d.Capture()
	assert.Equal(t, "", snap.HeadContent)
	assert.Equal(t, "", snap.BodyContent)
	assert.Empty(t, snap.HTMLAttributes)
	assert.Empty(t, snap.HeadAttributes)
	assert.Empty(t, snap.BodyAttributes)
}

func TestBuildAndCapture(t *testing.T) {
	d := New()
	title := appendEl(t, d, HandleHead, "title")
	require.NoError(t, d.InsertBefore(title, d.CreateText("Example"), 0))

	p := appendEl(t, d, HandleBody, "P")
	require.NoError(t, d.SetAttribute(p, "Class", "greeting"))
	require.NoError(t, d.InsertBefore(p, d.CreateText("Hello <world>"), 0))
	require.NoError(t, d.InsertBefore(HandleBody, d.CreateComment("marker"), 0))

	require.NoError(t, d.SetAttribute(HandleHTML, "lang", "en"))
	require.NoError(t, d.SetAttribute(HandleBody, "foo", "bar"))

	snap := d.Capture()
	assert.Equal(t, "<title>Example</title>", snap.HeadContent)
	assert.Equal(t, `<p class="greeting">Hello &lt;world&gt;</p><!--marker-->`, snap.BodyContent)
	assert.Equal(t, map[string]string{"lang": "en"}, snap.HTMLAttributes)
	assert.Equal(t, map[string]string{"foo": "bar"}, snap.BodyAttributes)
	assert.Empty(t, snap.HeadAttributes)
}

func TestResetClearsContentAndAttributes(t *testing.T) {
	d := New()
	div := appendEl(t, d, HandleBody, "div")
	appendEl(t, d, HandleHead, "meta")
	require.NoError(t, d.SetAttribute(HandleHTML, "class", "x"))
	require.NoError(t, d.SetAttribute(HandleHead, "data-h", "1"))
	require.NoError(t, d.SetAttribute(HandleBody, "data-b", "1"))

	d.Reset()

	snap := d.Capture()
	assert.Empty(t, snap.HeadContent)
	assert.Empty(t, snap.BodyContent)
	assert.Empty(t, snap.HTMLAttributes)
	assert.Empty(t, snap.HeadAttributes)
	assert.Empty(t, snap.BodyAttributes)

	_, err := d.Info(div)
	assert.ErrorIs(t, err, ErrNoNode)

	info, err := d.Info(HandleBody)
	require.NoError(t, err)
	assert.Equal(t, "BODY", info.Name)
}

func TestInsertBeforeAndRelations(t *testing.T) {
	d := New()
	ul := appendEl(t, d, HandleBody, "ul")
	b := appendEl(t, d, ul, "li")
	a := d.CreateElement("li", "")
	require.NoError(t, d.InsertBefore(ul, a, b))

	first, err := d.Relative(ul, "first")
	require.NoError(t, err)
	assert.Equal(t, a, first)

	next, err := d.Relative(a, "next")
	require.NoError(t, err)
	assert.Equal(t, b, next)

	parent, err := d.Relative(b, "parent")
	require.NoError(t, err)
	assert.Equal(t, ul, parent)

	none, err := d.Relative(b, "next")
	require.NoError(t, err)
	assert.Zero(t, none)

	kids, err := d.Children(ul)
	require.NoError(t, err)
	assert.Equal(t, []int{a, b}, kids)

	require.NoError(t, d.RemoveChild(ul, a))
	kids, _ = d.Children(ul)
	assert.Equal(t, []int{b}, kids)
}

func TestHierarchyErrors(t *testing.T) {
	d := New()
	div := appendEl(t, d, HandleBody, "div")
	inner := appendEl(t, d, div, "span")
	text := d.CreateText("x")

	assert.ErrorIs(t, d.InsertBefore(inner, div, 0), ErrHierarchy)
	assert.ErrorIs(t, d.InsertBefore(text, div, 0), ErrHierarchy)
	assert.ErrorIs(t, d.InsertBefore(div, HandleBody, 0), ErrHierarchy)
	assert.ErrorIs(t, d.RemoveChild(HandleHTML, HandleBody), ErrHierarchy)
	assert.ErrorIs(t, d.RemoveChild(HandleBody, inner), ErrHierarchy)
	assert.ErrorIs(t, d.InsertBefore(HandleBody, 999, 0), ErrNoNode)
}

func TestFragmentInsertion(t *testing.T) {
	d := New()
	frag := d.CreateFragment()
	appendEl(t, d, frag, "a")
	appendEl(t, d, frag, "b")
	require.NoError(t, d.InsertBefore(HandleBody, frag, 0))

	out, err := d.InnerHTML(HandleBody)
	require.NoError(t, err)
	assert.Equal(t, "<a></a><b></b>", out)

	kids, _ := d.Children(frag)
	assert.Empty(t, kids)

	info, _ := d.Info(frag)
	assert.Equal(t, DocumentFragmentNode, info.Type)
}

func TestAttributes(t *testing.T) {
	d := New()
	el := appendEl(t, d, HandleBody, "input")
	require.NoError(t, d.SetAttribute(el, "type", "text"))
	require.NoError(t, d.SetAttribute(el, "TYPE", "checkbox"))
	require.NoError(t, d.SetAttribute(el, "checked", ""))

	v, ok, err := d.GetAttribute(el, "type")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "checkbox", v)

	attrs, err := d.Attributes(el)
	require.NoError(t, err)
	assert.Equal(t, []Attribute{{"type", "checkbox"}, {"checked", ""}}, attrs)

	require.NoError(t, d.RemoveAttribute(el, "checked"))
	_, ok, _ = d.GetAttribute(el, "checked")
	assert.False(t, ok)

	_, _, err = d.GetAttribute(d.CreateText("t"), "x")
	assert.Error(t, err)
}

func TestSVGKeepsCase(t *testing.T) {
	d := New()
	svg := d.CreateElement("svg", nsSVG)
	require.NoError(t, d.InsertBefore(HandleBody, svg, 0))
	grad := d.CreateElement("linearGradient", nsSVG)
	require.NoError(t, d.InsertBefore(svg, grad, 0))
	require.NoError(t, d.SetAttribute(grad, "gradientUnits", "userSpaceOnUse"))

	info, _ := d.Info(grad)
	assert.Equal(t, "linearGradient", info.Name)
	assert.Equal(t, nsSVG, info.Namespace)

	out, _ := d.InnerHTML(HandleBody)
	assert.Equal(t, `<svg><linearGradient gradientUnits="userSpaceOnUse"></linearGradient></svg>`, out)
}

func TestInnerHTMLRoundTrip(t *testing.T) {
	d := New()
	div := appendEl(t, d, HandleBody, "div")
	require.NoError(t, d.SetInnerHTML(div, `<p id="x">one</p><br>two`))

	out, err := d.InnerHTML(div)
	require.NoError(t, err)
	assert.Equal(t, `<p id="x">one</p><br>two`, out)

	outer, err := d.OuterHTML(div)
	require.NoError(t, err)
	assert.Equal(t, `<div><p id="x">one</p><br>two</div>`, outer)

	text, err := d.TextContent(div)
	require.NoError(t, err)
	assert.Equal(t, "onetwo", text)

	require.NoError(t, d.SetTextContent(div, "<b>"))
	out, _ = d.InnerHTML(div)
	assert.Equal(t, "&lt;b&gt;", out)

	assert.ErrorIs(t, d.SetInnerHTML(HandleHTML, "x"), ErrHierarchy)
}

func TestSerializeEscaping(t *testing.T) {
	d := New()
	p := appendEl(t, d, HandleBody, "p")
	require.NoError(t, d.SetAttribute(p, "title", `say "hi" & <go>`))
	require.NoError(t, d.InsertBefore(p, d.CreateText("it's \"quoted\" & <b>\u00a0x"), 0))
	style := appendEl(t, d, HandleHead, "style")
	require.NoError(t, d.InsertBefore(style, d.CreateText(`a > b { content: "&" }`), 0))
	img := appendEl(t, d, HandleBody, "img")
	require.NoError(t, d.SetAttribute(img, "src", "/a.png"))

	snap := d.Capture()
	assert.Equal(t, `<style>a > b { content: "&" }</style>`, snap.HeadContent)
	assert.Equal(t, `<p title="say &quot;hi&quot; &amp; <go>">it's "quoted" &amp; &lt;b&gt;&nbsp;x</p><img src="/a.png">`, snap.BodyContent)
}

func TestInsertAdjacentHTML(t *testing.T) {
	d := New()
	div := appendEl(t, d, HandleBody, "div")
	require.NoError(t, d.SetInnerHTML(div, "<i>mid</i>"))

	require.NoError(t, d.InsertAdjacentHTML(div, "afterbegin", "<b>start</b>"))
	require.NoError(t, d.InsertAdjacentHTML(div, "beforeend", "<u>end</u>"))
	require.NoError(t, d.InsertAdjacentHTML(div, "beforebegin", "<hr>"))
	require.NoError(t, d.InsertAdjacentHTML(div, "afterend", "<span>after</span>"))

	out, _ := d.InnerHTML(HandleBody)
	assert.Equal(t, `<hr><div><b>start</b><i>mid</i><u>end</u></div><span>after</span>`, out)

	assert.Error(t, d.InsertAdjacentHTML(div, "nowhere", "x"))
}

func TestNodeValueAndClone(t *testing.T) {
	d := New()
	txt := d.CreateText("a")
	require.NoError(t, d.SetNodeValue(txt, "b"))
	info, _ := d.Info(txt)
	assert.Equal(t, "b", info.Value)

	div := appendEl(t, d, HandleBody, "div")
	require.NoError(t, d.SetInnerHTML(div, "<em>x</em>"))
	shallow, err := d.CloneNode(div, false)
	require.NoError(t, err)
	deep, err := d.CloneNode(div, true)
	require.NoError(t, err)

	s, _ := d.OuterHTML(shallow)
	assert.Equal(t, "<div></div>", s)
	s, _ = d.OuterHTML(deep)
	assert.Equal(t, "<div><em>x</em></div>", s)
}
