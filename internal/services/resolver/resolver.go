// Package resolver decides what a wallet redirect means for the user: whether
// the returned transaction was a swap and whether it went through.
package resolver

import (
	"context"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v5"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/swap-engine/internal/adapters/near"
	"github.com/hxuan190/swap-engine/internal/adapters/persistence"
	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/config"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/metrics"
)

const (
	RESOLVER_SERVICE = "resolver-service"

	seenHashesMaxSize  = 4096
	SlippageViolation  = "Slippage Violation"
	SwapSucceeded      = "Swap successful"
	defaultLookupTries = 3
)

var (
	swapMethods   = map[string]bool{"ft_transfer_call": true, "swap": true, "near_withdraw": true}
	slippageError = regexp.MustCompile(`(?i)ERR_MIN_AMOUNT|slippage error`)
)

// Navigator is the navigation context of the redirect being resolved.
type Navigator interface {
	Location() string
	// Replace swaps the current entry for path without adding history.
	Replace(path string)
}

type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyFailure NotificationKind = "failure"
)

type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
	Hash    string           `json:"hash"`
}

type Notifier interface {
	Notify(n Notification)
}

// Outcome reports what one resolution did.
type Outcome struct {
	Hash string `json:"hash"`
	// Duplicate is set when the hash was already resolved.
	Duplicate    bool          `json:"duplicate"`
	Swap         bool          `json:"swap"`
	Notification *Notification `json:"notification,omitempty"`
	ReplacedPath string        `json:"replacedPath,omitempty"`
}

type TxLookup interface {
	AccountID() string
	TxStatus(ctx context.Context, hash, senderID string) (*domain.TransactionOutcome, error)
}

type PendingStore interface {
	MarkResolved(hash string) error
}

type Options struct {
	MaxTries        uint
	InitialInterval time.Duration
}

type Resolver struct {
	container.BaseDIInstance
	logger *common.ServiceLogger

	lookup   TxLookup
	store    PendingStore
	notifier Notifier
	opts     Options
	seen     *common.BoundedLRUCache[string, struct{}]
}

func NewResolver(lookup TxLookup, store PendingStore, notifier Notifier, opts Options) *Resolver {
	r := &Resolver{}
	r.init(lookup, store, notifier, opts)
	return r
}

func (r *Resolver) init(lookup TxLookup, store PendingStore, notifier Notifier, opts Options) {
	if opts.MaxTries == 0 {
		opts.MaxTries = defaultLookupTries
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	r.lookup = lookup
	r.store = store
	r.notifier = notifier
	r.opts = opts
	r.seen = common.NewBoundedLRUCache[string, struct{}](seenHashesMaxSize)
	r.logger = common.NewServiceLogger(r)
	if r.notifier == nil {
		r.notifier = logNotifier{logger: r.logger}
	}
}

func (r *Resolver) ID() string {
	return RESOLVER_SERVICE
}

func (r *Resolver) Configure(c container.IContainer) error {
	rpcCfg := c.GetConfig(config.RPC_CONFIG_KEY).(*config.RPCConfig)
	client := c.Instance(near.NEAR_CLIENT_SERVICE).(*near.Client)
	storage := c.Instance(persistence.STORAGE_SERVICE).(*persistence.Storage)

	var store PendingStore
	if storage.Enabled() {
		store = storage
	}
	r.init(client, store, nil, Options{MaxTries: rpcCfg.MaxRetries})
	return nil
}

func (r *Resolver) Start() error {
	return nil
}

func (r *Resolver) Stop() error {
	return nil
}

// Resolve inspects the transaction the navigation context points at. Each
// hash is resolved at most once; later calls report a duplicate.
func (r *Resolver) Resolve(ctx context.Context, nav Navigator) (*Outcome, error) {
	const op = "resolve outcome"

	loc, err := ParseLocation(nav.Location())
	if err != nil {
		return nil, common.ResolutionError(op, err)
	}
	hash := loc.LastHash()
	if hash == "" {
		return &Outcome{}, nil
	}
	if !r.seen.Add(hash, struct{}{}) {
		metrics.OutcomeResolutions.WithLabelValues("duplicate").Inc()
		return &Outcome{Hash: hash, Duplicate: true}, nil
	}

	tx, err := r.fetch(ctx, hash)
	if err != nil {
		metrics.OutcomeResolutions.WithLabelValues("error").Inc()
		err = common.ResolutionError(op, err)
		r.logger.Error().Err(err).Str("hash", hash).Msg("[resolver] transaction lookup failed")
		return nil, err
	}

	out := &Outcome{Hash: hash, Swap: isSwap(tx)}
	result := "other"
	if out.Swap {
		result = "success"
		if loc.ErrorCode() != "" {
			result = "suppressed"
		} else {
			n := Notification{Kind: NotifySuccess, Message: SwapSucceeded, Hash: hash}
			if failedOnSlippage(tx) {
				n = Notification{Kind: NotifyFailure, Message: SlippageViolation, Hash: hash}
				result = "slippage"
			}
			r.notifier.Notify(n)
			out.Notification = &n
		}
	}
	metrics.OutcomeResolutions.WithLabelValues(result).Inc()

	out.ReplacedPath = loc.Stripped()
	nav.Replace(out.ReplacedPath)

	if r.store != nil {
		if err := r.store.MarkResolved(hash); err != nil {
			r.logger.Warn().Err(err).Str("hash", hash).Msg("[resolver] failed to mark transaction resolved")
		}
	}
	return out, nil
}

func (r *Resolver) fetch(ctx context.Context, hash string) (*domain.TransactionOutcome, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxInterval = 4 * r.opts.InitialInterval

	operation := func() (*domain.TransactionOutcome, error) {
		return r.lookup.TxStatus(ctx, hash, r.lookup.AccountID())
	}
	notify := func(err error, d time.Duration) {
		r.logger.Debug().Err(err).Str("hash", hash).Dur("backoff", d).Msg("[resolver] transaction not available yet")
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.opts.MaxTries),
		backoff.WithNotify(notify))
}

// isSwap checks the first two actions, which is where a swap batch puts its
// transfer or exchange call.
func isSwap(tx *domain.TransactionOutcome) bool {
	for i, a := range tx.Actions {
		if i >= 2 {
			break
		}
		if swapMethods[a.MethodName] {
			return true
		}
	}
	return false
}

func failedOnSlippage(tx *domain.TransactionOutcome) bool {
	for _, msg := range tx.ReceiptErrors {
		if slippageError.MatchString(msg) {
			return true
		}
	}
	return false
}

type logNotifier struct {
	logger *common.ServiceLogger
}

func (n logNotifier) Notify(note Notification) {
	ev := n.logger.Info()
	if note.Kind == NotifyFailure {
		ev = n.logger.Warn()
	}
	ev.Str("hash", note.Hash).Str("kind", string(note.Kind)).Msg("[resolver] " + note.Message)
}
