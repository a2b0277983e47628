package chronikcache

import "github.com/chronikcache/chronikcache/internal/domain"

// Public aliases over the internal domain model's indexer capability set.
type (
	HistoryPage            = domain.HistoryPage
	HistoryFetcher         = domain.HistoryFetcher
	MsgType                = domain.MsgType
	TxEvent                = domain.TxEvent
	Subscription           = domain.Subscription
	ChronikClientInterface = domain.ChronikClientInterface
)

const (
	MsgTxAddedToMempool = domain.MsgTxAddedToMempool
	MsgTxFinalized      = domain.MsgTxFinalized
)
