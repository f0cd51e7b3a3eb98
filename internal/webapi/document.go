package webapi

import (
	"encoding/json"
	"fmt"

	"github.com/cryguy/fastboot/internal/core"
)

// documentJS builds the DOM object model over node handles of the
// host's dom.Document. Wrappers are cached per handle so identity holds
// within a render; __domReset drops the cache when the document resets.
const documentJS = `
(function() {
	var cache = {};
	var doc;

	function wrap(h) {
		if (!h) return null;
		var n = cache[h];
		if (n) return n;
		var info = JSON.parse(__dom_info(h));
		switch (info.type) {
		case 1: n = new Element(h, info); break;
		case 3: n = new Text(h, info); break;
		case 8: n = new Comment(h, info); break;
		case 9: n = doc; break;
		case 11: n = new DocumentFragment(h, info); break;
		default: n = new Node(h, info);
		}
		cache[h] = n;
		return n;
	}
	function list(json) { return JSON.parse(json).map(wrap); }
	function handleOf(node) {
		if (!(node instanceof Node)) throw new TypeError('parameter is not of type Node');
		return node.__h;
	}
	function isElement(n) { return n && n.nodeType === 1; }

	class Node extends EventTarget {
		constructor(h, info) {
			super();
			this.__h = h;
			this.__info = info;
		}
		get nodeType() { return this.__info.type; }
		get nodeName() { return this.__info.name; }
		get ownerDocument() { return this === doc ? null : doc; }
		get parentNode() { return wrap(__dom_rel(this.__h, 'parent')); }
		get parentElement() { var p = this.parentNode; return isElement(p) ? p : null; }
		get firstChild() { return wrap(__dom_rel(this.__h, 'first')); }
		get lastChild() { return wrap(__dom_rel(this.__h, 'last')); }
		get nextSibling() { return wrap(__dom_rel(this.__h, 'next')); }
		get previousSibling() { return wrap(__dom_rel(this.__h, 'prev')); }
		get childNodes() { return list(__dom_children(this.__h)); }
		get isConnected() {
			for (var n = this; n; n = n.parentNode) if (n === doc) return true;
			return false;
		}
		hasChildNodes() { return __dom_rel(this.__h, 'first') !== 0; }
		get nodeValue() { return this.nodeType === 3 || this.nodeType === 8 ? this.__info.value : null; }
		set nodeValue(v) {
			if (this.nodeType !== 3 && this.nodeType !== 8) return;
			v = v === null ? '' : String(v);
			__dom_setvalue(this.__h, v);
			this.__info.value = v;
		}
		get textContent() { return this.nodeType === 9 ? null : __dom_text_get(this.__h); }
		set textContent(v) {
			if (this.nodeType === 3 || this.nodeType === 8) { this.nodeValue = v; return; }
			__dom_text_set(this.__h, v === null || v === undefined ? '' : String(v));
		}
		insertBefore(child, ref) {
			__dom_insert(this.__h, handleOf(child), ref ? handleOf(ref) : 0);
			return child;
		}
		appendChild(child) { return this.insertBefore(child, null); }
		removeChild(child) {
			__dom_remove(this.__h, handleOf(child));
			return child;
		}
		replaceChild(child, old) {
			this.insertBefore(child, old);
			return this.removeChild(old);
		}
		remove() {
			var p = this.parentNode;
			if (p) p.removeChild(this);
		}
		contains(other) {
			for (var n = other; n; n = n.parentNode) if (n === this) return true;
			return false;
		}
		cloneNode(deep) { return wrap(__dom_clone(this.__h, !!deep)); }
	}

	function toNodes(args) {
		var out = [];
		for (var i = 0; i < args.length; i++) {
			out.push(args[i] instanceof Node ? args[i] : doc.createTextNode(String(args[i])));
		}
		return out;
	}

	var ParentMixin = {
		get children() { return this.childNodes.filter(isElement); },
		get childElementCount() { return this.children.length; },
		get firstElementChild() { return this.children[0] || null; },
		get lastElementChild() { var c = this.children; return c[c.length - 1] || null; },
		append: function() {
			var self = this;
			toNodes(arguments).forEach(function(n) { self.appendChild(n); });
		},
		prepend: function() {
			var self = this, first = this.firstChild;
			toNodes(arguments).forEach(function(n) { self.insertBefore(n, first); });
		},
		querySelector: function(sel) { return wrap(__dom_query_one(this.__h, String(sel))); },
		querySelectorAll: function(sel) { return list(__dom_query_all(this.__h, String(sel))); },
		getElementsByTagName: function(tag) { return this.querySelectorAll(tag === '*' ? '*' : String(tag)); },
		getElementsByClassName: function(names) {
			var sel = String(names).trim().split(/\s+/).filter(Boolean).map(function(c) { return '.' + c; }).join('');
			return sel ? this.querySelectorAll(sel) : [];
		}
	};
	function mixin(cls, source) {
		Object.getOwnPropertyNames(source).forEach(function(k) {
			Object.defineProperty(cls.prototype, k, Object.getOwnPropertyDescriptor(source, k));
		});
	}

	var ChildMixin = {
		before: function() {
			var p = this.parentNode, self = this;
			if (p) toNodes(arguments).forEach(function(n) { p.insertBefore(n, self); });
		},
		after: function() {
			var p = this.parentNode, next = this.nextSibling;
			if (p) toNodes(arguments).forEach(function(n) { p.insertBefore(n, next); });
		},
		replaceWith: function() {
			var p = this.parentNode;
			if (!p) return;
			this.before.apply(this, arguments);
			p.removeChild(this);
		}
	};

	class ClassList {
		constructor(el) { this._el = el; }
		_get() { return (this._el.getAttribute('class') || '').split(/\s+/).filter(Boolean); }
		_set(list) { this._el.setAttribute('class', list.join(' ')); }
		get length() { return this._get().length; }
		item(i) { return this._get()[i] || null; }
		contains(c) { return this._get().indexOf(c) >= 0; }
		add() {
			var cur = this._get();
			for (var i = 0; i < arguments.length; i++) if (cur.indexOf(arguments[i]) < 0) cur.push(String(arguments[i]));
			this._set(cur);
		}
		remove() {
			var drop = Array.prototype.slice.call(arguments);
			this._set(this._get().filter(function(c) { return drop.indexOf(c) < 0; }));
		}
		toggle(c, force) {
			var has = this.contains(c);
			if (force === undefined) force = !has;
			if (force && !has) this.add(c);
			if (!force && has) this.remove(c);
			return force;
		}
		toString() { return this._get().join(' '); }
	}

	function styleOf(el) {
		function parse() {
			var out = {};
			(el.getAttribute('style') || '').split(';').forEach(function(decl) {
				var i = decl.indexOf(':');
				if (i > 0) out[decl.slice(0, i).trim()] = decl.slice(i + 1).trim();
			});
			return out;
		}
		function write(props) {
			var s = Object.keys(props).map(function(k) { return k + ': ' + props[k] + ';'; }).join(' ');
			if (s) el.setAttribute('style', s); else el.removeAttribute('style');
		}
		function dash(k) { return k.replace(/[A-Z]/g, function(c) { return '-' + c.toLowerCase(); }); }
		var api = {
			getPropertyValue: function(k) { return parse()[k] || ''; },
			setProperty: function(k, v) {
				var p = parse();
				if (v === null || v === '') delete p[k]; else p[k] = String(v);
				write(p);
			},
			removeProperty: function(k) { var p = parse(), v = p[k] || ''; delete p[k]; write(p); return v; }
		};
		return new Proxy(api, {
			get: function(t, k) {
				if (k in t) return t[k];
				if (k === 'cssText') return el.getAttribute('style') || '';
				return typeof k === 'string' ? parse()[dash(k)] || '' : undefined;
			},
			set: function(t, k, v) {
				if (k === 'cssText') { el.setAttribute('style', String(v)); return true; }
				t.setProperty(dash(String(k)), v);
				return true;
			}
		});
	}

	class Element extends Node {
		get tagName() { return this.__info.name; }
		get localName() { return this.__info.ns === 'http://www.w3.org/1999/xhtml' ? this.__info.name.toLowerCase() : this.__info.name; }
		get namespaceURI() { return this.__info.ns; }
		getAttribute(name) { return JSON.parse(__dom_getattr(this.__h, String(name))); }
		getAttributeNS(ns, name) { return this.getAttribute(name); }
		setAttribute(name, value) { __dom_setattr(this.__h, String(name), String(value)); }
		setAttributeNS(ns, name, value) { this.setAttribute(name, value); }
		removeAttribute(name) { __dom_rmattr(this.__h, String(name)); }
		removeAttributeNS(ns, name) { this.removeAttribute(name); }
		hasAttribute(name) { return this.getAttribute(name) !== null; }
		hasAttributes() { return this.attributes.length > 0; }
		toggleAttribute(name, force) {
			var has = this.hasAttribute(name);
			if (force === undefined) force = !has;
			if (force && !has) this.setAttribute(name, '');
			if (!force && has) this.removeAttribute(name);
			return force;
		}
		get attributes() { return JSON.parse(__dom_attrs(this.__h)); }
		get id() { return this.getAttribute('id') || ''; }
		set id(v) { this.setAttribute('id', v); }
		get className() { return this.getAttribute('class') || ''; }
		set className(v) { this.setAttribute('class', v); }
		get classList() { return new ClassList(this); }
		get style() { return styleOf(this); }
		get innerHTML() { return __dom_inner_get(this.__h); }
		set innerHTML(v) { __dom_inner_set(this.__h, v === null ? '' : String(v)); }
		get outerHTML() { return __dom_outer_get(this.__h); }
		insertAdjacentHTML(pos, markup) { __dom_adjacent(this.__h, String(pos), String(markup)); }
		insertAdjacentElement(pos, el) {
			switch (String(pos).toLowerCase()) {
			case 'beforebegin': if (this.parentNode) this.parentNode.insertBefore(el, this); break;
			case 'afterbegin': this.insertBefore(el, this.firstChild); break;
			case 'beforeend': this.appendChild(el); break;
			case 'afterend': if (this.parentNode) this.parentNode.insertBefore(el, this.nextSibling); break;
			default: throw new SyntaxError('invalid position ' + pos);
			}
			return el;
		}
		get nextElementSibling() {
			for (var n = this.nextSibling; n; n = n.nextSibling) if (isElement(n)) return n;
			return null;
		}
		get previousElementSibling() {
			for (var n = this.previousSibling; n; n = n.previousSibling) if (isElement(n)) return n;
			return null;
		}
		matches(sel) { return __dom_matches(this.__h, String(sel)) === 1; }
		closest(sel) {
			for (var n = this; isElement(n); n = n.parentNode) if (n.matches(sel)) return n;
			return null;
		}
		get dataset() {
			var el = this;
			function attr(k) { return 'data-' + String(k).replace(/[A-Z]/g, function(c) { return '-' + c.toLowerCase(); }); }
			return new Proxy({}, {
				get: function(t, k) { var v = typeof k === 'string' ? el.getAttribute(attr(k)) : null; return v === null ? undefined : v; },
				set: function(t, k, v) { el.setAttribute(attr(k), v); return true; },
				deleteProperty: function(t, k) { el.removeAttribute(attr(k)); return true; }
			});
		}
	}
	mixin(Element, ParentMixin);
	mixin(Element, ChildMixin);

	class CharacterData extends Node {
		get data() { return this.__info.value; }
		set data(v) { this.nodeValue = v; }
		get length() { return this.__info.value.length; }
	}
	mixin(CharacterData, ChildMixin);
	class Text extends CharacterData {}
	class Comment extends CharacterData {}

	class DocumentFragment extends Node {}
	mixin(DocumentFragment, ParentMixin);

	class Document extends Node {
		get documentElement() { return wrap(2); }
		get head() { return wrap(3); }
		get body() { return wrap(4); }
		get defaultView() { return globalThis; }
		get location() { return globalThis.location; }
		get readyState() { return 'complete'; }
		createElement(tag) { return wrap(__dom_create(String(tag), '')); }
		createElementNS(ns, tag) { return wrap(__dom_create(String(tag), ns === null ? '' : String(ns))); }
		createTextNode(data) { return wrap(__dom_text(String(data))); }
		createComment(data) { return wrap(__dom_comment(String(data))); }
		createDocumentFragment() { return wrap(__dom_fragment()); }
		createRawHTMLSection(markup) {
			var frag = this.createDocumentFragment();
			var tmp = this.createElement('div');
			tmp.innerHTML = markup;
			while (tmp.firstChild) frag.appendChild(tmp.firstChild);
			return frag;
		}
		createEvent() { return new Event(''); }
		getElementById(id) { return wrap(__dom_byid(String(id))); }
		get title() {
			var t = this.head.querySelector('title');
			return t ? t.textContent : '';
		}
		set title(v) {
			var t = this.head.querySelector('title');
			if (!t) {
				t = this.createElement('title');
				this.head.appendChild(t);
			}
			t.textContent = String(v);
		}
	}
	mixin(Document, ParentMixin);

	doc = new Document(1, { type: 9, name: '#document' });
	cache[1] = doc;

	globalThis.Node = Node;
	globalThis.Element = Element;
	globalThis.HTMLElement = Element;
	globalThis.CharacterData = CharacterData;
	globalThis.Text = Text;
	globalThis.Comment = Comment;
	globalThis.DocumentFragment = DocumentFragment;
	globalThis.Document = Document;
	globalThis.document = doc;
	globalThis.__domReset = function() {
		cache = { 1: doc };
		doc._listeners = Object.create(null);
	};
})();
`

func jsonString(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SetupDocument installs the document global over h.Doc.
func SetupDocument(rt core.JSRuntime, h *Host) error {
	d := h.Doc
	funcs := map[string]any{
		"__dom_info": func(id int) (string, error) {
			info, err := d.Info(id)
			if err != nil {
				return "", err
			}
			return jsonString(info)
		},
		"__dom_create": func(tag, ns string) int { return d.CreateElement(tag, ns) },
		"__dom_text":   func(data string) int { return d.CreateText(data) },
		"__dom_comment": func(data string) int {
			return d.CreateComment(data)
		},
		"__dom_fragment": func() int { return d.CreateFragment() },
		"__dom_insert": func(parent, child, ref int) (int, error) {
			return 1, d.InsertBefore(parent, child, ref)
		},
		"__dom_remove": func(parent, child int) (int, error) {
			return 1, d.RemoveChild(parent, child)
		},
		"__dom_rel": func(id int, rel string) (int, error) {
			return d.Relative(id, rel)
		},
		"__dom_children": func(id int) (string, error) {
			ids, err := d.Children(id)
			if err != nil {
				return "", err
			}
			return jsonString(ids)
		},
		"__dom_getattr": func(id int, name string) (string, error) {
			v, ok, err := d.GetAttribute(id, name)
			if err != nil || !ok {
				return "null", err
			}
			return jsonString(v)
		},
		"__dom_setattr": func(id int, name, value string) (int, error) {
			return 1, d.SetAttribute(id, name, value)
		},
		"__dom_rmattr": func(id int, name string) (int, error) {
			return 1, d.RemoveAttribute(id, name)
		},
		"__dom_attrs": func(id int) (string, error) {
			attrs, err := d.Attributes(id)
			if err != nil {
				return "", err
			}
			return jsonString(attrs)
		},
		"__dom_setvalue": func(id int, value string) (int, error) {
			return 1, d.SetNodeValue(id, value)
		},
		"__dom_text_get": func(id int) (string, error) { return d.TextContent(id) },
		"__dom_text_set": func(id int, text string) (int, error) {
			return 1, d.SetTextContent(id, text)
		},
		"__dom_inner_get": func(id int) (string, error) { return d.InnerHTML(id) },
		"__dom_inner_set": func(id int, markup string) (int, error) {
			return 1, d.SetInnerHTML(id, markup)
		},
		"__dom_outer_get": func(id int) (string, error) { return d.OuterHTML(id) },
		"__dom_adjacent": func(id int, position, markup string) (int, error) {
			return 1, d.InsertAdjacentHTML(id, position, markup)
		},
		"__dom_clone": func(id int, deep bool) (int, error) { return d.CloneNode(id, deep) },
		"__dom_query_one": func(id int, sel string) (int, error) {
			return d.QuerySelector(id, sel)
		},
		"__dom_query_all": func(id int, sel string) (string, error) {
			ids, err := d.QuerySelectorAll(id, sel)
			if err != nil {
				return "", err
			}
			return jsonString(ids)
		},
		"__dom_matches": func(id int, sel string) (int, error) {
			ok, err := d.Matches(id, sel)
			return core.BoolToInt(ok), err
		},
		"__dom_byid": func(value string) int { return d.ElementByID(value) },
	}
	for name, fn := range funcs {
		if err := rt.RegisterFunc(name, fn); err != nil {
			return fmt.Errorf("registering %s: %w", name, err)
		}
	}
	return rt.Eval(documentJS)
}

// ResetDocument clears the document and the script-side node cache.
func ResetDocument(rt core.JSRuntime, h *Host) error {
	h.Doc.Reset()
	return rt.Eval(`globalThis.__domReset && globalThis.__domReset()`)
}
