package webapi

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"strings"

	"github.com/google/uuid"

	"github.com/cryguy/fastboot/internal/core"
)

// maxRandomBytes is the getRandomValues quota from the Web Crypto API.
const maxRandomBytes = 65536

// cryptoJS exposes crypto.getRandomValues, crypto.randomUUID and
// crypto.subtle.digest. Bytes cross the Go boundary as base64.
const cryptoJS = `
(function() {
	function bytesOf(data) {
		if (data instanceof ArrayBuffer) return new Uint8Array(data);
		if (ArrayBuffer.isView(data)) return new Uint8Array(data.buffer, data.byteOffset, data.byteLength);
		throw new TypeError('expected an ArrayBuffer or ArrayBufferView');
	}
	function toB64(bytes) {
		var parts = [];
		for (var i = 0; i < bytes.length; i += 8192) {
			parts.push(String.fromCharCode.apply(null, bytes.subarray(i, Math.min(i + 8192, bytes.length))));
		}
		return btoa(parts.join(''));
	}
	function fromB64(b64) {
		var s = atob(b64);
		var out = new Uint8Array(s.length);
		for (var i = 0; i < s.length; i++) out[i] = s.charCodeAt(i);
		return out;
	}
	globalThis.__bytesToB64 = toB64;
	globalThis.__b64ToBytes = fromB64;

	var subtle = {
		digest: function(algorithm, data) {
			try {
				var name = typeof algorithm === 'string' ? algorithm : algorithm && algorithm.name;
				return Promise.resolve(fromB64(__cryptoDigest(String(name), toB64(bytesOf(data)))).buffer);
			} catch (e) {
				return Promise.reject(e);
			}
		}
	};
	globalThis.crypto = {
		getRandomValues: function(arr) {
			if (!ArrayBuffer.isView(arr) || arr instanceof Float32Array || arr instanceof Float64Array) {
				throw new TypeError('getRandomValues requires an integer TypedArray');
			}
			var view = bytesOf(arr);
			view.set(fromB64(__cryptoRandomBytes(view.length)));
			return arr;
		},
		randomUUID: function() { return __cryptoRandomUUID(); },
		subtle: subtle
	};
})();
`

// hashFor maps a Web Crypto digest name to its hash constructor.
func hashFor(name string) (func() hash.Hash, error) {
	switch strings.ToUpper(strings.ReplaceAll(name, "_", "-")) {
	case "SHA-1":
		return sha1.New, nil
	case "SHA-256":
		return sha256.New, nil
	case "SHA-384":
		return sha512.New384, nil
	case "SHA-512":
		return sha512.New, nil
	}
	return nil, fmt.Errorf("unsupported digest algorithm %q", name)
}

// SetupCrypto installs the crypto global.
func SetupCrypto(rt core.JSRuntime, _ *Host) error {
	if err := rt.RegisterFunc("__cryptoRandomBytes", func(n int) (string, error) {
		if n < 0 || n > maxRandomBytes {
			return "", fmt.Errorf("getRandomValues: %d bytes exceeds the quota of %d", n, maxRandomBytes)
		}
		b := make([]byte, n)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(b), nil
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__cryptoRandomUUID", func() string {
		return uuid.NewString()
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__cryptoDigest", func(algo, dataB64 string) (string, error) {
		newHash, err := hashFor(algo)
		if err != nil {
			return "", err
		}
		data, err := base64.StdEncoding.DecodeString(dataB64)
		if err != nil {
			return "", err
		}
		h := newHash()
		h.Write(data)
		return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
	}); err != nil {
		return err
	}
	return rt.Eval(cryptoJS)
}
