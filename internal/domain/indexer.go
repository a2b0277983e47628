package domain

import "context"

// HistoryPage is what the indexer returns for a page of a subject's
// transaction history.
type HistoryPage struct {
	Txs      []Tx `json:"txs"`
	NumTxs   int  `json:"numTxs"`
	NumPages int  `json:"numPages"`
}

// HistoryFetcher describes a page/size-addressed history source returning
// an indexer HistoryPage. The facade's query builders do not implement it:
// they expose History(ctx) and HistoryPage(ctx, offset, size), which return
// a HistoryResult.
type HistoryFetcher interface {
	History(ctx context.Context, page, size int) (HistoryPage, error)
}

// MsgType is the inbound subscription event kind.
type MsgType string

const (
	MsgTxAddedToMempool MsgType = "TX_ADDED_TO_MEMPOOL"
	MsgTxFinalized      MsgType = "TX_FINALIZED"
)

// TxEvent is a single inbound notification from the indexer's push
// transport.
type TxEvent struct {
	MsgType MsgType
	Txid    string
}

// Subscription is the capability set a notification transport exposes per
// namespace: subscribe/unsubscribe per namespace, message/connect/reconnect/
// error/end callbacks, a blocking wait for the connection to open, and
// close.
type Subscription interface {
	Subscribe(ctx context.Context, namespace Namespace, id string) error
	Unsubscribe(ctx context.Context, namespace Namespace, id string) error
	OnMessage(func(namespace Namespace, id string, ev TxEvent))
	OnConnect(func())
	OnReconnect(func())
	OnError(func(error))
	OnEnd(func())
	WaitForOpen(ctx context.Context) error
	Close() error
}

// ChronikClientInterface is the duck-typed capability set the cache
// consumes from the embedding indexer client. Rather than
// type-sniffing the concrete client, components depend only on this
// explicit interface; everything else the real client exposes is reached
// through PassThrough by name.
type ChronikClientInterface interface {
	AddressHistory(ctx context.Context, address string, page, size int) (HistoryPage, error)
	TokenIDHistory(ctx context.Context, tokenID string, page, size int) (HistoryPage, error)
	ScriptHistory(ctx context.Context, scriptType, scriptHash string, page, size int) (HistoryPage, error)
	Tx(ctx context.Context, txid string) (Tx, error)
	Subscription() Subscription

	// PassThrough dispatches a method by name to the underlying indexer
	// client for any capability the cache does not model directly; every
	// other method the embedding indexer exposes is passed through
	// transparently.
	PassThrough(ctx context.Context, method string, args ...any) (any, error)
}
