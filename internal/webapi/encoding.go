package webapi

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/cryguy/fastboot/internal/core"
)

// encodingJS builds TextEncoder and TextDecoder on top of the UTF-8
// conversion every engine already has in encodeURIComponent.
const encodingJS = `
(function() {
	class TextEncoder {
		get encoding() { return 'utf-8'; }
		encode(input) {
			var s = unescape(encodeURIComponent(input === undefined ? '' : String(input)));
			var out = new Uint8Array(s.length);
			for (var i = 0; i < s.length; i++) out[i] = s.charCodeAt(i);
			return out;
		}
	}
	class TextDecoder {
		constructor(label, options) {
			var l = (label || 'utf-8').toLowerCase();
			if (l !== 'utf-8' && l !== 'utf8' && l !== 'unicode-1-1-utf-8') {
				throw new RangeError('TextDecoder: unsupported encoding ' + label);
			}
			this.fatal = !!(options && options.fatal);
		}
		get encoding() { return 'utf-8'; }
		decode(input) {
			if (input === undefined || input === null) return '';
			var bytes = input instanceof ArrayBuffer ? new Uint8Array(input)
				: new Uint8Array(input.buffer, input.byteOffset, input.byteLength);
			var parts = [];
			for (var i = 0; i < bytes.length; i += 8192) {
				parts.push(String.fromCharCode.apply(null, bytes.subarray(i, Math.min(i + 8192, bytes.length))));
			}
			var s = parts.join('');
			try {
				return decodeURIComponent(escape(s));
			} catch (e) {
				if (this.fatal) throw new TypeError('TextDecoder: invalid utf-8');
				return s;
			}
		}
	}
	globalThis.TextEncoder = TextEncoder;
	globalThis.TextDecoder = TextDecoder;
	globalThis.btoa = function(data) {
		if (arguments.length < 1) throw new TypeError('btoa requires 1 argument');
		return __btoa(String(data));
	};
	globalThis.atob = function(data) {
		if (arguments.length < 1) throw new TypeError('atob requires 1 argument');
		return __atob(String(data));
	};
})();
`

var errLatin1 = errors.New("string contains characters outside of the Latin1 range")

// latin1Bytes maps each code point of s to one byte.
func latin1Bytes(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return nil, errLatin1
		}
		out = append(out, byte(r))
	}
	return out, nil
}

// latin1String is the inverse of latin1Bytes.
func latin1String(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}

// SetupEncoding installs atob, btoa, TextEncoder and TextDecoder.
func SetupEncoding(rt core.JSRuntime, _ *Host) error {
	if err := rt.RegisterFunc("__btoa", func(s string) (string, error) {
		b, err := latin1Bytes(s)
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(b), nil
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__atob", func(s string) (string, error) {
		s = strings.Map(func(r rune) rune {
			switch r {
			case ' ', '\t', '\n', '\f', '\r':
				return -1
			}
			return r
		}, s)
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		}
		if err != nil {
			return "", errors.New("invalid base64 string")
		}
		return latin1String(b), nil
	}); err != nil {
		return err
	}
	return rt.Eval(encodingJS)
}
