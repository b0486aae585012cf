package profile

import (
	"encoding/base64"
	"strings"
)

// Obfuscation format: "<version>:" + base64(xor(plain, pad)). The version
// prefix lets a future format coexist with stored values. XOR with a fixed
// pad is a readability deterrent, deliberately not cryptography; anyone with
// database access and this source can recover keys, which matches the
// stated persistence contract.

const obfuscationVersion = "v1"

var obfuscationPad = []byte("graphweave-bridge-profile-pad")

// Obfuscate encodes a plaintext key for storage. Empty input stays empty;
// already-obfuscated input is returned unchanged so double application is
// harmless.
func Obfuscate(plain string) string {
	if plain == "" || strings.HasPrefix(plain, obfuscationVersion+":") {
		return plain
	}
	return obfuscationVersion + ":" + base64.StdEncoding.EncodeToString(xorPad([]byte(plain)))
}

// Deobfuscate recovers the plaintext. Values without a recognized version
// prefix pass through untouched, so pre-format rows keep working.
func Deobfuscate(stored string) string {
	raw, ok := strings.CutPrefix(stored, obfuscationVersion+":")
	if !ok {
		return stored
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return stored
	}
	return string(xorPad(decoded))
}

func xorPad(in []byte) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		out[i] = b ^ obfuscationPad[i%len(obfuscationPad)]
	}
	return out
}
