package chronikcache

import "github.com/chronikcache/chronikcache/internal/domain"

// Public type aliases over the internal domain model, so embedders of this
// package see chronikcache.Tx / chronikcache.Subject etc. without reaching
// into an internal package.
type (
	Namespace = domain.Namespace
	Subject   = domain.Subject
	Block     = domain.Block
	Tx        = domain.Tx
)

const (
	NamespaceAddress = domain.NamespaceAddress
	NamespaceToken   = domain.NamespaceToken
)

var (
	Address          = domain.Address
	Token            = domain.Token
	LooksLikeAddress = domain.LooksLikeAddress
)
