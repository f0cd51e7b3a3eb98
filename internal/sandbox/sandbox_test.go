package sandbox

import (
	"context"
	"encoding/json"
	"html"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/fastboot/internal/bootstrap"
	"github.com/cryguy/fastboot/internal/core"
	"github.com/cryguy/fastboot/internal/quickjs"
	"github.com/cryguy/fastboot/internal/render"
	"github.com/cryguy/fastboot/internal/webapi"
)

// appJS is a minimal application behind a module loader. Routes:
//
//	/        renders a heading and sets attributes when asked to
//	/defer   defers rendering until a timer fires
//	/debug   dumps the render context into the body
//	/meta    changes metadata in place
//	/fail    rejects the visit
const appJS = `
(function() {
	var modules = {};
	globalThis.require = function(name) {
		if (!(name in modules)) throw new Error('Could not find module ' + name);
		return modules[name];
	};
	globalThis.destroyed = 0;

	class Instance {
		constructor() { this.registry = {}; }
		register(key, value, opts) {
			if (opts.instantiate !== false) throw new Error('expected a singleton');
			this.registry[key] = value;
		}
		boot(opts) {
			this.root = opts.rootElement;
			this.isBrowser = opts.isBrowser;
			return Promise.resolve();
		}
		visit(url, opts) {
			var info = this.registry['info:-fastboot'];
			var root = this.root;
			var h1 = document.createElement('h1');
			h1.textContent = 'Hello world!';
			root.appendChild(h1);
			document.title = 'Example';
			if (info.request.queryParams.attributes) {
				document.documentElement.setAttribute('foo', 'html');
				document.head.setAttribute('foo', 'head');
				document.body.setAttribute('foo', 'body');
			}
			switch (url) {
			case '/defer':
				info.deferRendering(new Promise(function(resolve) {
					setTimeout(function() {
						info.response.statusCode = 202;
						info.response.headers.set('X-Later', 'yes');
						info.metadata.phase = 'late';
						root.appendChild(document.createTextNode('later'));
						resolve();
					}, 10);
				}));
				break;
			case '/debug':
				var p = document.createElement('pre');
				p.textContent = JSON.stringify({
					isBrowser: this.isBrowser,
					request: info.request,
					host: info.request.host(),
					statusCode: info.response.statusCode,
					config: FastBoot.config('my-app')
				});
				root.appendChild(p);
				break;
			case '/meta':
				info.metadata.list = [];
				info.metadata.list.push('a');
				info.metadata.obj = {x: 1};
				info.metadata.obj.x = 2;
				info.metadata.gone = true;
				delete info.metadata.gone;
				info.deferRendering(Promise.resolve().then(function() {
					info.metadata.list.push('b');
				}));
				break;
			case '/fail':
				return Promise.reject(new Error('route failed'));
			}
			return Promise.resolve();
		}
		destroy() { globalThis.destroyed++; }
	}

	modules['~fastboot/app-factory'] = {
		default: function() {
			return {
				boot: function() { return Promise.resolve(); },
				buildInstance: function() { return Promise.resolve(new Instance()); }
			};
		}
	};
})();
`

func newSandbox(t *testing.T) *Sandbox {
	t.Helper()
	facade, err := bootstrap.New("my-app", json.RawMessage(`{"my-app":{"env":"test"}}`))
	require.NoError(t, err)
	sb, err := New(Options{
		Config:  core.DefaultEngineConfig(),
		Runtime: quickjs.New,
		Facade:  facade,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(sb.Close)
	require.NoError(t, sb.Exec("app.js", appJS))
	require.NoError(t, sb.Boot(testContext(t)))
	return sb
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRenderHelloWorld(t *testing.T) {
	sb := newSandbox(t)
	m := render.NewManager(sb, sb)

	info, err := m.Render(testContext(t), "/", core.RequestInit{Method: "GET", Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, 200, info.Response.StatusCode)

	snap, err := m.Capture()
	require.NoError(t, err)
	assert.Equal(t, core.Snapshot{
		HeadContent:    "<title>Example</title>",
		BodyContent:    "<h1>Hello world!</h1>",
		HTMLAttributes: map[string]string{},
		HeadAttributes: map[string]string{},
		BodyAttributes: map[string]string{},
	}, snap)
}

func TestRenderResetsDocumentBetweenRenders(t *testing.T) {
	sb := newSandbox(t)
	m := render.NewManager(sb, sb)
	ctx := testContext(t)

	_, err := m.Render(ctx, "/", core.RequestInit{Path: "/", QueryParams: map[string]string{"attributes": "1"}})
	require.NoError(t, err)
	snap, err := m.Capture()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"foo": "html"}, snap.HTMLAttributes)
	assert.Equal(t, map[string]string{"foo": "head"}, snap.HeadAttributes)
	assert.Equal(t, map[string]string{"foo": "body"}, snap.BodyAttributes)

	_, err = m.Render(ctx, "/", core.RequestInit{Path: "/"})
	require.NoError(t, err)
	snap, err = m.Capture()
	require.NoError(t, err)
	assert.Equal(t, "<h1>Hello world!</h1>", snap.BodyContent)
	assert.Empty(t, snap.HTMLAttributes)
	assert.Empty(t, snap.BodyAttributes)

	destroyed, err := sb.rt.EvalInt(`destroyed`)
	require.NoError(t, err)
	assert.Equal(t, 1, destroyed)
}

func TestRenderWaitsForDeferredWork(t *testing.T) {
	sb := newSandbox(t)
	m := render.NewManager(sb, sb)

	info, err := m.Render(testContext(t), "/defer", core.RequestInit{Path: "/defer"})
	require.NoError(t, err)
	assert.Equal(t, 202, info.Response.StatusCode)
	v, ok := info.Response.Headers.Get("x-later")
	assert.True(t, ok)
	assert.Equal(t, "yes", v)
	assert.Equal(t, map[string]any{"phase": "late"}, info.Metadata())

	snap, err := m.Capture()
	require.NoError(t, err)
	assert.Equal(t, "<h1>Hello world!</h1>later", snap.BodyContent)
}

func TestRenderCollectsNestedMetadata(t *testing.T) {
	sb := newSandbox(t)
	m := render.NewManager(sb, sb)

	info, err := m.Render(testContext(t), "/meta", core.RequestInit{Path: "/meta"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"list": []any{"a", "b"},
		"obj":  map[string]any{"x": 2.0},
	}, info.Metadata())

	info, err = m.Render(testContext(t), "/", core.RequestInit{Path: "/"})
	require.NoError(t, err)
	assert.Empty(t, info.Metadata())
}

func TestRenderExposesRequest(t *testing.T) {
	sb := newSandbox(t)
	m := render.NewManager(sb, sb)

	_, err := m.Render(testContext(t), "/debug", core.RequestInit{
		Method:      "GET",
		Protocol:    "http:",
		Path:        "/debug",
		Headers:     map[string][]string{"Accept": {"text/html"}, "Host": {"example.org"}},
		Cookies:     map[string]string{"foo": "bar"},
		QueryParams: map[string]string{"bar": "baz"},
		Body:        "quz",
	})
	require.NoError(t, err)
	snap, err := m.Capture()
	require.NoError(t, err)

	raw := snap.BodyContent
	start := len("<h1>Hello world!</h1><pre>")
	require.Greater(t, len(raw), start)
	raw = raw[start : len(raw)-len("</pre>")]
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(html.UnescapeString(raw)), &out))
	assert.Equal(t, map[string]any{
		"isBrowser": true,
		"request": map[string]any{
			"method":   "GET",
			"protocol": "http:",
			"path":     "/debug",
			"headers": map[string]any{
				"accept": []any{"text/html"},
				"host":   []any{"example.org"},
			},
			"cookies":     map[string]any{"foo": "bar"},
			"queryParams": map[string]any{"bar": "baz"},
			"body":        "quz",
		},
		"host":       "example.org",
		"statusCode": 200.0,
		"config":     map[string]any{"env": "test"},
	}, out)
}

func TestRenderPropagatesApplicationErrors(t *testing.T) {
	sb := newSandbox(t)
	m := render.NewManager(sb, sb)

	_, err := m.Render(testContext(t), "/fail", core.RequestInit{Path: "/fail"})
	var se *webapi.ScriptError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Error: route failed", se.Message)
	assert.False(t, m.Running())

	_, err = m.Capture()
	assert.ErrorIs(t, err, core.ErrNotRendered)

	_, err = m.Render(testContext(t), "/", core.RequestInit{Path: "/"})
	assert.NoError(t, err)
}

func TestDeferRenderingTwiceThrows(t *testing.T) {
	sb := newSandbox(t)
	require.NoError(t, sb.Exec("twice.js", `
		var factory = require('~fastboot/app-factory');
		var original = factory.default;
		factory.default = function() {
			var app = original();
			var build = app.buildInstance;
			app.buildInstance = function() {
				return build().then(function(inst) {
					inst.visit = function() {
						var info = inst.registry['info:-fastboot'];
						info.deferRendering(Promise.resolve());
						info.deferRendering(Promise.resolve());
					};
					return inst;
				});
			};
			return app;
		};
	`))
	require.NoError(t, sb.Boot(testContext(t)))
	m := render.NewManager(sb, sb)

	_, err := m.Render(testContext(t), "/", core.RequestInit{Path: "/"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already deferred")
}
