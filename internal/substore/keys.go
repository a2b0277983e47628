package substore

import (
	"strconv"
	"strings"
)

// Key layout:
//
//	<S>:txOrder            flat order list
//	<S>:txMap               flat map
//	<S>:txOrder:meta        {pageCount, totalTxs}
//	<S>:txOrder:<i>         order chunk i
//	<S>:txMap:meta          {pageCount, totalTxs}
//	<S>:txMap:<i>           map chunk i
//	metadata:address:<id>   CacheMetadata
//	metadata:token:<id>     CacheMetadata
//
// S itself may contain colons (e.g. an "ecash:..." address id), so parsing
// back from a key to S is done by suffix-stripping known markers rather
// than by splitting on ":".

const (
	metadataPrefix = "metadata:"
	txOrderSuffix  = ":txOrder"
	txMapSuffix    = ":txMap"
	metaSuffix     = ":meta"
)

func txOrderKey(s string) string     { return s + txOrderSuffix }
func txMapKey(s string) string       { return s + txMapSuffix }
func txOrderMetaKey(s string) string { return s + txOrderSuffix + metaSuffix }
func txMapMetaKey(s string) string   { return s + txMapSuffix + metaSuffix }
func txOrderChunkKey(s string, i int) string {
	return s + txOrderSuffix + ":" + strconv.Itoa(i)
}
func txMapChunkKey(s string, i int) string {
	return s + txMapSuffix + ":" + strconv.Itoa(i)
}

func metadataKey(namespace, id string) string {
	return metadataPrefix + namespace + ":" + id
}

// subjectFromTxOrderKey extracts S from a "<S>:txOrder"-shaped key,
// rejecting ":meta"/chunk variants so callers counting subjects don't
// double count. Neither stats nor ListSubjects calls it: both enumerate
// subjects from the metadata keys.
func subjectFromTxOrderKey(key string) (string, bool) {
	if !strings.HasSuffix(key, txOrderSuffix) {
		return "", false
	}
	return strings.TrimSuffix(key, txOrderSuffix), true
}

// namespaceAndIDFromMetadataKey splits a "metadata:<ns>:<id>" key back into
// namespace and id. Namespace is always one of the two fixed literal
// tokens, so it can be matched unambiguously even though id may itself
// contain colons.
func namespaceAndIDFromMetadataKey(key string) (namespace, id string, ok bool) {
	rest := strings.TrimPrefix(key, metadataPrefix)
	if rest == key {
		return "", "", false
	}
	for _, ns := range []string{"address", "token"} {
		if strings.HasPrefix(rest, ns+":") {
			return ns, strings.TrimPrefix(rest, ns+":"), true
		}
	}
	return "", "", false
}
