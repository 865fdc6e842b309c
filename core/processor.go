package core

import (
	"errors"
	"fmt"

	"redbank/config"
	"redbank/core/types"
	"redbank/native/decimal"
	"redbank/native/incentives"
	"redbank/native/matoken"
	"redbank/native/oracle"
	"redbank/native/redbank"
	"redbank/observability/metrics"
	redbankstate "redbank/state/redbank"
	"redbank/storage"
)

var (
	ErrUnauthorized   = errors.New("core: sender not authorized")
	ErrUnknownMessage = errors.New("core: unknown message type")
)

// RewardMinter pays out claimed incentive rewards. The hosting chain wires
// its bank module in here; tests use a recorder.
type RewardMinter interface {
	MintReward(to types.Address, denom string, amount decimal.Dec) error
}

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool {
	return p[module]
}

// Receipt reports the outcome of one applied message.
type Receipt struct {
	MsgType string
	Events  []*types.Event
}

// Processor applies money market messages against a backing store. Every
// message runs on a fresh engine stack over a write overlay; the overlay is
// committed only when the whole message succeeds.
type Processor struct {
	db          storage.Database
	admin       types.Address
	closeFactor decimal.Dec
	rewardDenom string
	prices      *oracle.Manual
	pauses      pauseSet
	minter      RewardMinter
	metrics     *metrics.RedBankMetrics
	blockTime   uint64
}

// NewProcessor builds a processor from the node configuration.
func NewProcessor(db storage.Database, cfg *config.Config) (*Processor, error) {
	if db == nil {
		return nil, errors.New("core: nil database")
	}
	if cfg == nil {
		return nil, errors.New("core: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	admin, err := cfg.Admin()
	if err != nil {
		return nil, err
	}
	return &Processor{
		db:          db,
		admin:       admin,
		closeFactor: decimal.NewFromBps(cfg.CloseFactorBps),
		rewardDenom: cfg.RewardDenom,
		prices:      oracle.NewManual(cfg.OracleMaxAgeSeconds),
		pauses:      make(pauseSet),
		metrics:     metrics.RedBank(),
	}, nil
}

// SetRewardMinter wires the payout sink for claimed rewards. Claims fail
// without one.
func (p *Processor) SetRewardMinter(minter RewardMinter) {
	if p == nil {
		return
	}
	p.minter = minter
}

// SetBlockTime advances the deterministic clock all accrual runs on.
func (p *Processor) SetBlockTime(now uint64) {
	if p == nil {
		return
	}
	p.blockTime = now
	p.prices.SetBlockTime(now)
}

// SetModulePaused toggles the engine-wide pause switch.
func (p *Processor) SetModulePaused(module string, paused bool) {
	if p == nil {
		return
	}
	p.pauses[module] = paused
}

// engineStack is the per-message wiring of ledger, incentives and engine
// over a shared keeper.
type engineStack struct {
	keeper *redbankstate.Keeper
	ledger *matoken.Ledger
	inc    *incentives.Engine
	engine *redbank.Engine
}

func (p *Processor) newStack(db storage.Database) *engineStack {
	keeper := redbankstate.NewKeeper(db)

	ledger := matoken.NewLedger()
	ledger.SetState(keeper)

	inc := incentives.NewEngine()
	inc.SetState(keeper)
	inc.SetBlockTime(p.blockTime)

	engine := redbank.NewEngine(p.closeFactor)
	engine.SetState(keeper)
	engine.SetCollateralLedger(ledger)
	engine.SetIncentives(inc)
	engine.SetPriceSource(p.prices)
	engine.SetPauses(p.pauses)
	engine.SetBlockTime(p.blockTime)

	inc.SetSupplySource(engine)
	ledger.SetObserver(engine)

	return &engineStack{keeper: keeper, ledger: ledger, inc: inc, engine: engine}
}

// Apply executes one message atomically and returns the events it emitted.
func (p *Processor) Apply(sender types.Address, msg Msg) (*Receipt, error) {
	if p == nil {
		return nil, errors.New("core: nil processor")
	}
	if msg == nil {
		return nil, ErrUnknownMessage
	}

	overlay := redbankstate.NewOverlay(p.db)
	stack := p.newStack(overlay)

	touched, postCommit, err := p.dispatch(stack, sender, msg)
	p.metrics.ObserveMessage(msg.msgType(), err == nil)
	if err != nil {
		overlay.Discard()
		return nil, err
	}
	if err := overlay.Commit(); err != nil {
		return nil, err
	}
	// External side effects run only against committed state, so a commit
	// failure can never pay out rewards the store still counts as unclaimed.
	if postCommit != nil {
		if err := postCommit(); err != nil {
			return nil, err
		}
	}
	if _, ok := msg.(MsgLiquidate); ok {
		p.metrics.ObserveLiquidation()
	}
	p.publishMarketGauges(touched)

	return &Receipt{
		MsgType: msg.msgType(),
		Events:  stack.keeper.DrainEvents(),
	}, nil
}

// dispatch routes the message to the engine stack and reports which markets
// it touched, for gauge refresh after commit. The returned postCommit action,
// when non-nil, carries an external side effect that must wait for the
// overlay to commit.
func (p *Processor) dispatch(stack *engineStack, sender types.Address, msg Msg) (touched []string, postCommit func() error, err error) {
	switch m := msg.(type) {
	case MsgInitAsset:
		if err := p.requireAdmin(sender); err != nil {
			return nil, nil, err
		}
		_, err := stack.engine.InitAsset(m.Asset, m.Params)
		return []string{m.Asset}, nil, err
	case MsgUpdateAsset:
		if err := p.requireAdmin(sender); err != nil {
			return nil, nil, err
		}
		_, err := stack.engine.UpdateAsset(m.Asset, m.Params)
		return []string{m.Asset}, nil, err
	case MsgDeposit:
		_, err := stack.engine.Deposit(sender, m.Asset, m.Amount)
		return []string{m.Asset}, nil, err
	case MsgWithdraw:
		_, err := stack.engine.Withdraw(sender, m.Asset, m.Amount)
		return []string{m.Asset}, nil, err
	case MsgBorrow:
		_, err := stack.engine.Borrow(sender, m.Asset, m.Amount)
		return []string{m.Asset}, nil, err
	case MsgRepay:
		_, _, err := stack.engine.Repay(sender, m.Asset, m.Amount)
		return []string{m.Asset}, nil, err
	case MsgLiquidate:
		_, err := stack.engine.Liquidate(sender, m.Borrower, m.CollateralAsset, m.DebtAsset, m.Amount, m.ReceiveMaToken)
		return []string{m.CollateralAsset, m.DebtAsset}, nil, err
	case MsgTransferCollateral:
		err := stack.ledger.Transfer(m.Asset, sender, m.To, m.Amount)
		return []string{m.Asset}, nil, err
	case MsgUpdateUncollateralizedLoanLimit:
		if err := p.requireAdmin(sender); err != nil {
			return nil, nil, err
		}
		err := stack.engine.UpdateUncollateralizedLoanLimit(m.User, m.Asset, m.Limit)
		return []string{m.Asset}, nil, err
	case MsgSetAssetIncentive:
		if err := p.requireAdmin(sender); err != nil {
			return nil, nil, err
		}
		return nil, nil, stack.inc.SetAssetIncentive(m.Asset, m.EmissionPerSecond)
	case MsgClaimRewards:
		if p.minter == nil {
			return nil, nil, errors.New("core: reward minter not configured")
		}
		total, err := stack.inc.ClaimRewards(sender)
		if err != nil {
			return nil, nil, err
		}
		return nil, func() error {
			return p.minter.MintReward(sender, p.rewardDenom, total)
		}, nil
	case MsgWithdrawReserves:
		if err := p.requireAdmin(sender); err != nil {
			return nil, nil, err
		}
		err := stack.engine.WithdrawReserves(m.Asset, m.Amount)
		return []string{m.Asset}, nil, err
	case MsgPostPrice:
		if err := p.requireAdmin(sender); err != nil {
			return nil, nil, err
		}
		p.prices.Post(m.Asset, m.Price)
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
}

func (p *Processor) requireAdmin(sender types.Address) error {
	if p.admin.IsZero() || sender != p.admin {
		return ErrUnauthorized
	}
	return nil
}

// publishMarketGauges refreshes the per-market utilization and borrow rate
// gauges from committed state. Metric errors never fail a message.
func (p *Processor) publishMarketGauges(assets []string) {
	if len(assets) == 0 {
		return
	}
	keeper := redbankstate.NewKeeper(p.db)
	for _, asset := range assets {
		market, err := keeper.GetMarket(asset)
		if err != nil || market == nil {
			continue
		}
		utilization, err := redbank.Utilization(market)
		if err != nil {
			continue
		}
		p.metrics.SetMarketGauges(asset, utilization.Float64(), market.BorrowRate.Float64())
	}
}
