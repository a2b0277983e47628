package chronikcache

import "strings"

// ScriptResolver maps (scriptType, scriptHash) to the address it encodes.
// Address encoding itself is out of scope for this layer: the real codec
// is chain-specific and pluggable. The default resolver implements a
// placeholder prefix scheme ("ecash" prefix) so the facade has something
// to forward through by default; embedders targeting a real chain supply
// their own resolver at
// construction.
type ScriptResolver func(scriptType, scriptHash string) (string, error)

// DefaultScriptResolver returns a resolver that lower-cases hash and
// prefixes it with prefix, a pure function from (scriptType, scriptHash) to
// an address.
func DefaultScriptResolver(prefix string) ScriptResolver {
	return func(scriptType, scriptHash string) (string, error) {
		return prefix + strings.ToLower(scriptHash), nil
	}
}
