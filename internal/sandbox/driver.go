package sandbox

// driverJS keeps the application, its instances and the render context
// object on the script side. Go addresses instances by number.
const driverJS = `
(function() {
	function settle(p) { return Promise.resolve(p).then(function() {}); }

	var fb = {
		app: null,
		instances: {},
		next: 0,
		deferred: null,
		metadata: null
	};

	fb.boot = function() {
		var req = globalThis.require;
		if (typeof req !== 'function') throw new Error('no module loader: require is not defined');
		var factory = req('~fastboot/app-factory');
		fb.app = (factory && factory.default ? factory.default : factory)();
		return settle(fb.app.boot());
	};

	fb.build = function() {
		if (!fb.app) throw new Error('application is not booted');
		return Promise.resolve(fb.app.buildInstance()).then(function(inst) {
			var id = ++fb.next;
			fb.instances[id] = inst;
			return id;
		});
	};

	function instance(id) {
		var inst = fb.instances[id];
		if (!inst) throw new Error('instance ' + id + ' is gone');
		return inst;
	}

	function options(o) {
		var root = o.rootElement === 'body' ? document.body : document.querySelector(o.rootElement);
		return {
			document: document,
			isBrowser: o.isBrowser,
			isInteractive: o.isInteractive,
			rootElement: root || document.body
		};
	}

	fb.register = function(id, key, value, instantiate) {
		instance(id).register(key, value, { instantiate: instantiate });
	};
	fb.boot_instance = function(id, opts) { return settle(instance(id).boot(options(opts))); };
	fb.visit = function(id, url, opts) { return settle(instance(id).visit(url, options(opts))); };
	fb.destroy = function(id) {
		var inst = instance(id);
		delete fb.instances[id];
		return settle(inst.destroy());
	};

	fb.wait = function() { return settle(fb.deferred); };

	fb.collect = function() {
		var out = {};
		var md = fb.metadata || {};
		Object.keys(md).forEach(function(k) {
			var json;
			try { json = JSON.stringify(md[k]); } catch (e) { json = undefined; }
			out[k] = json === undefined ? null : JSON.parse(json);
		});
		return JSON.stringify(out);
	};

	fb.info = function(request, reqHeaders, resHeaders) {
		request.headers = new FastBootHeaders(reqHeaders);
		request.host = function() { return request.headers.get('host'); };

		var response = { headers: new FastBootHeaders(resHeaders) };
		Object.defineProperty(response, 'statusCode', {
			enumerable: true,
			get: function() { return __fb_status(); },
			set: function(v) { __fb_set_status(Number(v) | 0); }
		});

		fb.metadata = {};
		fb.deferred = null;
		return {
			request: request,
			response: response,
			get metadata() { return fb.metadata; },
			set metadata(v) { fb.metadata = v; },
			get deferredPromise() { return fb.deferred || Promise.resolve(); },
			deferRendering: function(promise) {
				__fb_defer();
				fb.deferred = Promise.resolve(promise);
			}
		};
	};

	globalThis.__fb = fb;
})();
`
