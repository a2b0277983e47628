// Package chronikcache implements a caching layer in front of a Chronik-
// style blockchain indexer: bounded durable storage of address/token
// transaction history, a background build pipeline that keeps it current,
// and a notification-driven repair path for unconfirmed transactions.
package chronikcache

import (
	"context"
	"fmt"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chronikcache/chronikcache/internal/cacheengine"
	"github.com/chronikcache/chronikcache/internal/domain"
	"github.com/chronikcache/chronikcache/internal/kvstore"
	"github.com/chronikcache/chronikcache/internal/notify"
	"github.com/chronikcache/chronikcache/internal/retry"
	"github.com/chronikcache/chronikcache/internal/stats"
	"github.com/chronikcache/chronikcache/internal/substore"
)

// HistoryResult is the response envelope of history().
type HistoryResult = cacheengine.HistoryResult

// ChronikCache is the public facade: it owns the durable store, the cache
// engine, and the notification manager, and exposes the fluent
// address/token/script query builders plus management operations. Its
// lifecycle is bounded by NewChronikCache(...)/Destroy().
type ChronikCache struct {
	cfg      Config
	client   domain.ChronikClientInterface
	resolver ScriptResolver
	log      log.Logger
	kv       kvstore.KV
	store    *substore.Store
	engine   *cacheengine.Engine
	metrics  *stats.Set
}

// Option customizes construction beyond Config; the embedding indexer
// client is the one mandatory input, everything else defaults sensibly.
type Option func(*ChronikCache)

// WithScriptResolver overrides the default script-to-address resolver.
func WithScriptResolver(r ScriptResolver) Option {
	return func(cc *ChronikCache) { cc.resolver = r }
}

// WithMetricsRegistry registers the cache's prometheus collectors against
// reg instead of a private registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(cc *ChronikCache) { cc.metrics = stats.NewSet(reg) }
}

// NewChronikCache wires every component against client and cfg, opening
// the durable store at cfg.DataDir.
func NewChronikCache(client domain.ChronikClientInterface, cfg Config, opts ...Option) (*ChronikCache, error) {
	cfg = applyDefaults(cfg)
	logger := newLogger(cfg.EnableLogging)

	kv, err := kvstore.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("chronikcache: open store: %w", err)
	}
	store, err := substore.New(kv, cfg.MaxItemsPerKey, cfg.GlobalMetadataCacheLimit)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	cc := &ChronikCache{
		cfg:      cfg,
		client:   client,
		resolver: DefaultScriptResolver(cfg.AddressPrefix),
		log:      logger,
		kv:       kv,
		store:    store,
	}
	for _, opt := range opts {
		opt(cc)
	}
	if cc.metrics == nil {
		cc.metrics = stats.NewSet(nil)
	}

	retryOpts := retry.Options{
		MaxRetries:         cfg.FailoverOptions.MaxRetries,
		RetryDelay:         cfg.FailoverOptions.RetryDelay,
		ExponentialBackoff: cfg.FailoverOptions.ExponentialBackoff,
	}
	engineCfg := cacheengine.Config{
		MaxTxLimit:           cfg.MaxTxLimit,
		MaxCacheSize:         cfg.MaxCacheSize,
		ThrottleThreshold:    cfg.ThrottleThreshold,
		HashCheckProbability: cfg.HashCheckProbability,
		RetryOptions:         retryOpts,
	}
	notifyCfg := notify.Config{
		MaxSubscriptions: cfg.MaxSubscriptions,
		WSTimeout:        cfg.WSTimeout,
		WSExtendTimeout:  cfg.WSExtendTimeout,
		RetryOptions:     retryOpts,
	}
	cc.engine = cacheengine.New(engineCfg, store, client, client.Subscription(), notifyCfg, logger,
		cacheengine.WithHooks(cc.metrics.IncAttach, cc.metrics.IncEvict, cc.metrics.IncRepair))
	return cc, nil
}

// AddressQuery is the fluent builder returned by Address.
type AddressQuery struct {
	cc      *ChronikCache
	subject domain.Subject
}

// Address builds a query for an address subject.
func (cc *ChronikCache) Address(id string) *AddressQuery {
	return &AddressQuery{cc: cc, subject: domain.Address(id)}
}

// History serves page 0 at the default page size of 200.
func (q *AddressQuery) History(ctx context.Context) (HistoryResult, error) {
	return q.HistoryPage(ctx, 0, 200)
}

// HistoryPage serves an explicit page.
func (q *AddressQuery) HistoryPage(ctx context.Context, pageOffset, pageSize int) (HistoryResult, error) {
	return q.cc.engine.History(ctx, q.subject, pageOffset, pageSize)
}

// TokenQuery is the fluent builder returned by TokenID.
type TokenQuery struct {
	cc      *ChronikCache
	subject domain.Subject
}

// TokenID builds a query for a token subject.
func (cc *ChronikCache) TokenID(id string) *TokenQuery {
	return &TokenQuery{cc: cc, subject: domain.Token(id)}
}

func (q *TokenQuery) History(ctx context.Context) (HistoryResult, error) {
	return q.HistoryPage(ctx, 0, 200)
}

func (q *TokenQuery) HistoryPage(ctx context.Context, pageOffset, pageSize int) (HistoryResult, error) {
	return q.cc.engine.History(ctx, q.subject, pageOffset, pageSize)
}

// Script resolves (scriptType, scriptHash) to an address subject via the
// configured ScriptResolver, then forwards to that address's history.
func (cc *ChronikCache) Script(scriptType, scriptHash string) (*AddressQuery, error) {
	addr, err := cc.resolver(scriptType, scriptHash)
	if err != nil {
		return nil, fmt.Errorf("chronikcache: resolve script %s: %w", scriptType, err)
	}
	return cc.Address(addr), nil
}

// ClearAddressCache drops durable and memory-cache state for an address
// subject.
func (cc *ChronikCache) ClearAddressCache(ctx context.Context, id string) error {
	return cc.engine.ClearSubject(ctx, domain.Address(id))
}

// ClearTokenCache drops durable and memory-cache state for a token subject.
func (cc *ChronikCache) ClearTokenCache(ctx context.Context, id string) error {
	return cc.engine.ClearSubject(ctx, domain.Token(id))
}

// ClearAllCache drops every subject with durable presence.
func (cc *ChronikCache) ClearAllCache(ctx context.Context) error {
	return cc.engine.ClearAll(ctx)
}

// GetCacheStatus reports the derived state for id.
func (cc *ChronikCache) GetCacheStatus(id string, isToken bool) string {
	subject := domain.Address(id)
	if isToken {
		subject = domain.Token(id)
	}
	return cc.engine.GetCacheStatus(subject).String()
}

// GetStatistics returns the stats snapshot.
func (cc *ChronikCache) GetStatistics() (stats.Snapshot, error) {
	return stats.Collect(cc.store, cc.engine, cc.cfg)
}

// Metrics exposes the prometheus collector set.
func (cc *ChronikCache) Metrics() *stats.Set {
	return cc.metrics
}

// PassThrough dispatches any method the embedding indexer client exposes
// beyond the modeled capability set. Object-shaped responses
// are tagged with status 3, matching the direct-passthrough envelope.
func (cc *ChronikCache) PassThrough(ctx context.Context, method string, args ...any) (any, error) {
	res, err := cc.client.PassThrough(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if obj, ok := res.(map[string]any); ok {
		tagged := make(map[string]any, len(obj)+1)
		for k, v := range obj {
			tagged[k] = v
		}
		tagged["status"] = 3
		return tagged, nil
	}
	return res, nil
}

// Destroy tears down sweepers, subscriptions, and the durable store.
func (cc *ChronikCache) Destroy(ctx context.Context) error {
	if err := cc.engine.Destroy(ctx); err != nil {
		return err
	}
	return cc.kv.Close()
}
