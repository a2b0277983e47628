// Package domain holds the data model shared across chronikcache's
// internal packages (subjects, transactions, the indexer capability set),
// kept separate from the root package to avoid an import cycle between the
// facade and the components it wires together.
package domain

import (
	"encoding/json"
	"strings"
)

// Namespace distinguishes the two disjoint subject kinds the cache tracks.
type Namespace string

const (
	NamespaceAddress Namespace = "address"
	NamespaceToken   Namespace = "token"
)

// Subject identifies a cache owner: an address or a token id. Scripts are
// resolved to an address subject by the script resolver (§4.10/§4.14)
// before they ever reach the engine, so the engine only ever sees these two
// kinds.
type Subject struct {
	Namespace Namespace
	ID        string
}

// Key returns the opaque external identifier used in durable key names and
// log lines, e.g. "address:ecash:qp...".
func (s Subject) Key() string {
	return string(s.Namespace) + ":" + s.ID
}

func (s Subject) IsToken() bool { return s.Namespace == NamespaceToken }

// Address constructs an address subject.
func Address(id string) Subject { return Subject{Namespace: NamespaceAddress, ID: id} }

// Token constructs a token subject.
func Token(id string) Subject { return Subject{Namespace: NamespaceToken, ID: id} }

// Block is the confirmation data the core inspects on a transaction.
type Block struct {
	Height    uint64 `json:"height"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Tx is the cache-relevant projection of a dynamically-typed transaction
// record. Raw carries every other field byte-for-byte so boundary
// serializers never lose data the core doesn't understand, including
// numeric fields outside 64-bit range.
type Tx struct {
	Txid          string          `json:"txid"`
	Block         *Block          `json:"block,omitempty"`
	TimeFirstSeen int64           `json:"timeFirstSeen"`
	IsFinal       bool            `json:"isFinal"`
	Raw           json.RawMessage `json:"-"`
}

// MarshalJSON merges the cache-relevant fields back into Raw so pass-through
// consumers see the original payload with any fields the cache rewrote
// (currently just isFinal/block) reflected.
func (t Tx) MarshalJSON() ([]byte, error) {
	base := map[string]json.RawMessage{}
	if len(t.Raw) > 0 {
		if err := json.Unmarshal(t.Raw, &base); err != nil {
			return nil, err
		}
	}
	type projection struct {
		Txid          string `json:"txid"`
		Block         *Block `json:"block,omitempty"`
		TimeFirstSeen int64  `json:"timeFirstSeen"`
		IsFinal       bool   `json:"isFinal"`
	}
	p := projection{Txid: t.Txid, Block: t.Block, TimeFirstSeen: t.TimeFirstSeen, IsFinal: t.IsFinal}
	projBytes, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var projFields map[string]json.RawMessage
	if err := json.Unmarshal(projBytes, &projFields); err != nil {
		return nil, err
	}
	for k, v := range projFields {
		base[k] = v
	}
	return json.Marshal(base)
}

// UnmarshalJSON keeps the full payload in Raw while also decoding the
// cache-relevant projection.
func (t *Tx) UnmarshalJSON(data []byte) error {
	type projection struct {
		Txid          string `json:"txid"`
		Block         *Block `json:"block,omitempty"`
		TimeFirstSeen int64  `json:"timeFirstSeen"`
		IsFinal       bool   `json:"isFinal"`
	}
	var p projection
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	t.Txid, t.Block, t.TimeFirstSeen, t.IsFinal = p.Txid, p.Block, p.TimeFirstSeen, p.IsFinal
	t.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Confirmed reports whether the transaction carries a block height.
func (t Tx) Confirmed() bool { return t.Block != nil }

// AddressPrefix is the recognizable marker distinguishing an address
// subject id from a bare token id for introspection purposes.
const AddressPrefix = "ecash:"

// LooksLikeAddress reports whether id carries the recognizable address
// prefix; anything else is treated as a token for introspection only.
func LooksLikeAddress(id string) bool {
	return strings.HasPrefix(id, AddressPrefix)
}
