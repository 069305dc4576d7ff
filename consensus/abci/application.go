// Package abci hosts the agent escrow protocol as a CometBFT application.
package abci

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	types "github.com/cometbft/cometbft/abci/types"
	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	"github.com/cometbft/cometbft/libs/log"
	tmproto "github.com/cometbft/cometbft/proto/tendermint/types"

	"github.com/NethermindEth/agent-protocol/communication"
	"github.com/NethermindEth/agent-protocol/core"
	"github.com/NethermindEth/agent-protocol/escrow"
	"github.com/NethermindEth/agent-protocol/host"
	"github.com/NethermindEth/agent-protocol/store"
)

// Codespace tags every failed result produced by the protocol.
const Codespace = "agentprotocol"

const appVersion uint64 = 1

// TxObserver is told the outcome of every delivered transaction.
type TxObserver interface {
	ObserveTx(txType string, code uint32, took time.Duration)
}

type Option func(*Application)

func WithLogger(logger log.Logger) Option {
	return func(app *Application) { app.logger = logger }
}

// WithNotifier sets where committed notifications are delivered.
func WithNotifier(n communication.Notifier) Option {
	return func(app *Application) { app.notifier = n }
}

func WithTxObserver(o TxObserver) Option {
	return func(app *Application) { app.observer = o }
}

type Application struct {
	types.BaseApplication

	chainID  string
	mu       sync.RWMutex
	store    *store.Store
	rent     escrow.Rent
	logger   log.Logger
	notifier communication.Notifier
	observer TxObserver

	validators []types.ValidatorUpdate
	height     int64
	pending    []communication.Notification
}

var _ types.Application = (*Application)(nil)

func NewApplication(chainID string, st *store.Store, opts ...Option) (*Application, error) {
	app := &Application{
		chainID: chainID,
		store:   st,
		logger:  log.NewNopLogger(),
		height:  st.Height(),
	}
	for _, opt := range opts {
		opt(app)
	}
	app.logger = app.logger.With("module", "abci")

	rent, err := loadRent(st.Committed())
	if err != nil {
		return nil, err
	}
	app.rent = rent
	return app, nil
}

func (app *Application) Info(_ context.Context, _ *types.RequestInfo) (*types.ResponseInfo, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return &types.ResponseInfo{
		Data:             "agent escrow protocol",
		Version:          "1.0.0",
		AppVersion:       appVersion,
		LastBlockHeight:  app.store.Height(),
		LastBlockAppHash: app.store.LastHash(),
	}, nil
}

func (app *Application) InitChain(_ context.Context, req *types.RequestInitChain) (*types.ResponseInitChain, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if req.ChainId != "" && app.chainID != "" && req.ChainId != app.chainID {
		return nil, errors.Newf("genesis chain id %q does not match %q", req.ChainId, app.chainID)
	}
	app.validators = req.Validators
	if len(app.validators) == 0 {
		app.logger.Error("no validators in genesis, consensus may not work properly")
	}

	gen, err := ParseGenesis(req.AppStateBytes)
	if err != nil {
		return nil, err
	}
	rent, err := gen.Apply(app.store.Block())
	if err != nil {
		return nil, err
	}
	app.rent = rent
	app.logger.Info("init chain",
		"chain_id", req.ChainId,
		"validators", len(app.validators),
		"accounts", len(gen.Accounts),
		"rent_per_byte", rent.PerByte,
	)

	return &types.ResponseInitChain{
		Validators: app.validators,
		ConsensusParams: &tmproto.ConsensusParams{
			Block: &tmproto.BlockParams{
				MaxBytes: 22020096, // 21MB
				MaxGas:   -1,
			},
			Evidence: &tmproto.EvidenceParams{
				MaxAgeNumBlocks: 100000,
				MaxAgeDuration:  48 * time.Hour,
				MaxBytes:        1048576, // 1MB
			},
			Validator: &tmproto.ValidatorParams{
				PubKeyTypes: []string{"ed25519"},
			},
			Version: &tmproto.VersionParams{
				App: appVersion,
			},
		},
		AppHash: app.store.WorkingHash(),
	}, nil
}

// CheckTx admits transactions that are well formed, correctly signed and not
// already spent by nonce. Protocol rules are only evaluated on delivery.
func (app *Application) CheckTx(_ context.Context, req *types.RequestCheckTx) (*types.ResponseCheckTx, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()

	tx, signer, err := authenticate(req.Tx)
	if err == nil {
		err = checkNonceAhead(app.store.Committed(), signer, tx.Nonce)
	}
	if err != nil {
		return &types.ResponseCheckTx{Code: core.Code(err), Log: err.Error(), Codespace: Codespace}, nil
	}
	return &types.ResponseCheckTx{Code: types.CodeTypeOK}, nil
}

// PrepareProposal drops transactions that could never be delivered and
// keeps the block under the size limit.
func (app *Application) PrepareProposal(_ context.Context, req *types.RequestPrepareProposal) (*types.ResponsePrepareProposal, error) {
	var (
		txs  [][]byte
		size int64
	)
	for _, raw := range req.Txs {
		if _, _, err := authenticate(raw); err != nil {
			app.logger.Debug("dropping tx from proposal", "tx", core.TxHash(raw), "err", err)
			continue
		}
		if size+int64(len(raw)) > req.MaxTxBytes {
			break
		}
		size += int64(len(raw))
		txs = append(txs, raw)
	}
	return &types.ResponsePrepareProposal{Txs: txs}, nil
}

// ProcessProposal rejects blocks carrying transactions that fail decoding or
// signature verification.
func (app *Application) ProcessProposal(_ context.Context, req *types.RequestProcessProposal) (*types.ResponseProcessProposal, error) {
	for i, raw := range req.Txs {
		if _, _, err := authenticate(raw); err != nil {
			app.logger.Info("rejecting proposal", "height", req.Height, "index", i, "err", err)
			return &types.ResponseProcessProposal{Status: types.ResponseProcessProposal_REJECT}, nil
		}
	}
	return &types.ResponseProcessProposal{Status: types.ResponseProcessProposal_ACCEPT}, nil
}

func (app *Application) FinalizeBlock(_ context.Context, req *types.RequestFinalizeBlock) (*types.ResponseFinalizeBlock, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	results := make([]*types.ExecTxResult, len(req.Txs))
	for i, raw := range req.Txs {
		results[i] = app.deliverTx(raw, req.Height, req.Time)
	}
	app.height = req.Height
	hash := app.store.WorkingHash()
	app.logger.Info("finalized block", "height", req.Height, "txs", len(req.Txs), "app_hash", cmtbytes.HexBytes(hash))
	return &types.ResponseFinalizeBlock{TxResults: results, AppHash: hash}, nil
}

// deliverTx executes one transaction in its own cache. The nonce is spent
// even when execution fails; nothing else survives a failure.
func (app *Application) deliverTx(raw []byte, height int64, blockTime time.Time) *types.ExecTxResult {
	start := time.Now()
	txHash := core.TxHash(raw)
	logger := app.logger.With("tx", txHash)

	tx, signer, err := authenticate(raw)
	if err == nil {
		err = spendNonce(app.store.Block(), signer, tx.Nonce)
	}
	if err != nil {
		logger.Info("rejected tx", "err", err)
		return app.fail(txTypeOf(tx), err, start)
	}

	cache := store.NewCache(app.store.Block())
	hc := host.NewContext(cache, height, blockTime.Unix(), app.rent, logger)
	data, err := route(hc, signer, tx)
	if err != nil {
		cache.Discard()
		logger.Info("tx failed", "type", tx.Type, "signer", signer, "code", core.Code(err), "err", err)
		return app.fail(string(tx.Type), err, start)
	}
	if err := cache.Write(); err != nil {
		logger.Error("flushing tx writes", "err", err)
		return app.fail(string(tx.Type), err, start)
	}

	var bz []byte
	if data != nil {
		if bz, err = json.Marshal(data); err != nil {
			logger.Error("encoding tx result", "err", err)
		}
	}
	events := make([]types.Event, 0, len(hc.Events.Events()))
	for _, ev := range hc.Events.Events() {
		abciEv, err := toABCIEvent(ev)
		if err != nil {
			logger.Error("encoding event", "type", ev.EventType(), "err", err)
			continue
		}
		events = append(events, abciEv)
		app.pending = append(app.pending, communication.NewNotification(ev, height, txHash, blockTime))
	}
	logger.Debug("tx applied", "type", tx.Type, "signer", signer, "events", len(events))
	app.observe(string(tx.Type), types.CodeTypeOK, start)
	return &types.ExecTxResult{Code: types.CodeTypeOK, Data: bz, Events: events}
}

func (app *Application) fail(txType string, err error, start time.Time) *types.ExecTxResult {
	code := core.Code(err)
	app.observe(txType, code, start)
	return &types.ExecTxResult{Code: code, Log: err.Error(), Codespace: Codespace}
}

func (app *Application) observe(txType string, code uint32, start time.Time) {
	if app.observer != nil {
		app.observer.ObserveTx(txType, code, time.Since(start))
	}
}

func txTypeOf(tx *core.Transaction) string {
	if tx == nil {
		return "unknown"
	}
	return string(tx.Type)
}

// Commit persists the finalized block and then hands its notifications to
// the notifier.
func (app *Application) Commit(ctx context.Context, _ *types.RequestCommit) (*types.ResponseCommit, error) {
	app.mu.Lock()
	height := app.height
	hash, err := app.store.Commit(height)
	pending := app.pending
	app.pending = nil
	app.mu.Unlock()
	if err != nil {
		return nil, err
	}
	app.logger.Debug("committed", "height", height, "app_hash", cmtbytes.HexBytes(hash), "notifications", len(pending))

	if app.notifier != nil {
		for _, n := range pending {
			if err := app.notifier.Notify(ctx, n); err != nil {
				app.logger.Error("delivering notification", "type", n.Type, "id", n.ID, "err", err)
			}
		}
	}
	return &types.ResponseCommit{}, nil
}

func toABCIEvent(ev communication.Event) (types.Event, error) {
	attrs, err := communication.Attributes(ev)
	if err != nil {
		return types.Event{}, err
	}
	out := types.Event{Type: ev.EventType(), Attributes: make([]types.EventAttribute, 0, len(attrs))}
	for _, a := range attrs {
		out.Attributes = append(out.Attributes, types.EventAttribute{Key: a.Key, Value: a.Value, Index: true})
	}
	return out, nil
}
