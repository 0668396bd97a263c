package staking

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stakepool/core/events"
)

// ledgerState is the persistence surface the engine mutates. Implementations
// must make each Put durable before returning.
type ledgerState interface {
	PoolGet() (*Pool, bool, error)
	PoolPut(*Pool) error
	PositionGet(addr common.Address) (*Position, error)
	PositionPut(addr common.Address, pos *Position) error
}

// TransferPort is the external fungible-asset collaborator. Transfers must
// be atomic: a non-nil error means no balance moved. A non-nil error is
// fatal for the enclosing operation; the engine never commits a partial
// effect around a failed transfer.
type TransferPort interface {
	Transfer(from, to common.Address, amount *big.Int) error
	TransferFrom(spender, from, to common.Address, amount *big.Int) error
	Allowance(owner, spender common.Address) *big.Int
	BalanceOf(addr common.Address) *big.Int
}

// Engine is the staking ledger: it owns the pool singleton and all positions
// and serializes every operation. State mutations are committed before any
// outbound transfer is issued, and the engine lock is released around the
// call-out with inFlight set: any nested mutating call during that window is
// rejected with ErrReentrantCall, and a nested claim observes the
// already-committed (zeroed) position and answers with the no-op. The
// failure-path restores run only after inFlight is cleared under the lock,
// so they never interleave with another operation's mutations.
type Engine struct {
	mu       sync.Mutex
	inFlight bool

	state       ledgerState
	owner       common.Address
	poolAddress common.Address
	ports       map[common.Address]TransferPort
	emitter     events.Emitter
	nowFn       func() int64
}

// NewEngine constructs a staking engine bound to the owner identity and the
// pool custody address.
func NewEngine(owner, poolAddress common.Address) *Engine {
	return &Engine{
		owner:       owner,
		poolAddress: poolAddress,
		ports:       make(map[common.Address]TransferPort),
		emitter:     events.NoopEmitter{},
		nowFn:       func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state ledgerState) { e.state = state }

// RegisterPort wires the transfer port serving the given asset address.
// Register NativeAsset to serve native-currency evacuations.
func (e *Engine) RegisterPort(asset common.Address, port TransferPort) {
	if e == nil || port == nil {
		return
	}
	e.ports[asset] = port
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Owner returns the privileged owner identity.
func (e *Engine) Owner() common.Address { return e.owner }

// PoolAddress returns the custody address holding staked funds.
func (e *Engine) PoolAddress() common.Address { return e.poolAddress }

// Initialize records the immutable pool parameters and leaves the pool
// locked and empty. It runs exactly once per deployment.
func (e *Engine) Initialize(asset common.Address, minimumStake, dailyYieldRateScaled *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if asset == (common.Address{}) {
		return ErrInvalidConfig
	}
	if minimumStake == nil || minimumStake.Sign() <= 0 {
		return ErrInvalidConfig
	}
	if dailyYieldRateScaled == nil || dailyYieldRateScaled.Sign() <= 0 {
		return ErrInvalidConfig
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok, err := e.state.PoolGet(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	return e.state.PoolPut(&Pool{
		StakedAsset:          asset,
		TotalStaked:          big.NewInt(0),
		MinimumStake:         new(big.Int).Set(minimumStake),
		DailyYieldRateScaled: new(big.Int).Set(dailyYieldRateScaled),
		Mode:                 PoolModeLocked,
	})
}

// ChargeStaking pulls the owner-approved funding into pool custody and opens
// deposits. Rewards are paid out of whatever balance the pool holds; there
// is no separate reward reserve.
func (e *Engine) ChargeStaking(caller, funder common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errNilAmount
	}

	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return ErrReentrantCall
	}
	pool, err := e.loadPool()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if pool.Mode.Emergency() {
		e.mu.Unlock()
		return ErrEmergencyActive
	}
	port, err := e.portFor(pool.StakedAsset)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if port.Allowance(funder, e.poolAddress).Cmp(amount) < 0 {
		e.mu.Unlock()
		return ErrInsufficientAllowance
	}
	// The mode flip is committed before the pull so every persistence
	// failure surfaces while no funds have moved yet.
	savedMode := pool.Mode
	if pool.Mode == PoolModeLocked {
		pool.Mode = PoolModeOpen
	}
	if err := e.state.PoolPut(pool); err != nil {
		e.mu.Unlock()
		return err
	}
	e.inFlight = true
	e.mu.Unlock()

	terr := port.TransferFrom(e.poolAddress, funder, e.poolAddress, amount)

	e.mu.Lock()
	e.inFlight = false
	if terr != nil {
		e.restoreMode(savedMode)
	}
	e.mu.Unlock()
	if terr != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, terr)
	}

	e.emit(events.PoolCharged{Funder: funder, Amount: cloneBigInt(amount)})
	return nil
}

// Stake opens a position for the depositor. The position is recorded under
// the guarded critical section before the deposit is pulled; a failed pull
// moves no funds, so the unwind only erases the ledger records.
func (e *Engine) Stake(depositor common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}

	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return ErrReentrantCall
	}
	pool, err := e.loadPool()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if err := e.stakeChecks(pool, depositor, amount); err != nil {
		e.mu.Unlock()
		return err
	}
	port, err := e.portFor(pool.StakedAsset)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	startTime := e.nowFn()
	if err := e.state.PositionPut(depositor, &Position{
		Principal: new(big.Int).Set(amount),
		StartTime: startTime,
	}); err != nil {
		e.mu.Unlock()
		return err
	}
	pool.TotalStaked = new(big.Int).Add(pool.TotalStaked, amount)
	if err := e.state.PoolPut(pool); err != nil {
		_ = e.state.PositionPut(depositor, &Position{Principal: big.NewInt(0)})
		e.mu.Unlock()
		return err
	}
	e.inFlight = true
	e.mu.Unlock()

	terr := port.TransferFrom(e.poolAddress, depositor, e.poolAddress, amount)

	e.mu.Lock()
	e.inFlight = false
	if terr != nil {
		e.unwindStake(depositor, amount)
	}
	e.mu.Unlock()
	if terr != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, terr)
	}

	e.emit(events.Staked{Depositor: depositor, Amount: cloneBigInt(amount), StartTime: startTime})
	return nil
}

func (e *Engine) stakeChecks(pool *Pool, depositor common.Address, amount *big.Int) error {
	if pool.Mode.Locked() {
		return ErrPoolLocked
	}
	if pool.Mode.Emergency() {
		return ErrEmergencyActive
	}
	if amount == nil || amount.Cmp(pool.MinimumStake) < 0 {
		return ErrBelowMinimum
	}
	pos, err := e.state.PositionGet(depositor)
	if err != nil {
		return err
	}
	if pos != nil && ((pos.Principal != nil && pos.Principal.Sign() > 0) || pos.StartTime > 0) {
		return ErrPositionExists
	}
	return nil
}

// CalculateReward computes the yield a principal would have accrued over
// elapsedSeconds at the pool's configured rate.
func (e *Engine) CalculateReward(principal *big.Int, elapsedSeconds int64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	pool, err := e.loadPool()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return RewardAmount(principal, pool.DailyYieldRateScaled, elapsedSeconds), nil
}

// Claim closes the depositor's position and pays out principal plus accrued
// reward. Claiming with no open position is a permitted no-op that emits a
// zero-amount unstake event. The position is zeroed and committed before the
// outbound transfer so a re-entrant claim sees an empty position; a failed
// transfer restores the position, leaving the operation without effect.
func (e *Engine) Claim(depositor common.Address) (principal, reward *big.Int, err error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}

	e.mu.Lock()
	pool, err := e.loadPool()
	if err != nil {
		e.mu.Unlock()
		return nil, nil, err
	}
	if pool.Mode.Emergency() {
		e.mu.Unlock()
		return nil, nil, ErrEmergencyActive
	}
	pos, err := e.state.PositionGet(depositor)
	if err != nil {
		e.mu.Unlock()
		return nil, nil, err
	}
	if !pos.Open() {
		e.mu.Unlock()
		e.emit(events.Unstaked{Depositor: depositor, Amount: big.NewInt(0)})
		return big.NewInt(0), big.NewInt(0), nil
	}
	// A claim against an open position mutates; reject it while another
	// operation's transfer is in flight. The no-op branch above stays
	// reachable so a re-entrant claim on an already-zeroed position is
	// answered without effect.
	if e.inFlight {
		e.mu.Unlock()
		return nil, nil, ErrReentrantCall
	}

	elapsed := e.nowFn() - pos.StartTime
	if elapsed < 0 {
		elapsed = 0
	}
	principal = new(big.Int).Set(pos.Principal)
	reward = RewardAmount(principal, pool.DailyYieldRateScaled, elapsed)
	port, err := e.portFor(pool.StakedAsset)
	if err != nil {
		e.mu.Unlock()
		return nil, nil, err
	}

	saved := pos.Clone()
	if err := e.closePosition(pool, depositor, principal); err != nil {
		e.mu.Unlock()
		return nil, nil, err
	}
	e.inFlight = true
	e.mu.Unlock()

	payout := new(big.Int).Add(principal, reward)
	terr := port.Transfer(e.poolAddress, depositor, payout)

	e.mu.Lock()
	e.inFlight = false
	if terr != nil {
		e.reopenPosition(depositor, saved)
	}
	e.mu.Unlock()
	if terr != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTransferFailed, terr)
	}

	e.emit(events.Unstaked{Depositor: depositor, Amount: cloneBigInt(principal)})
	if reward.Sign() > 0 {
		e.emit(events.RewardWithdrawn{Depositor: depositor, Amount: cloneBigInt(reward)})
	}
	return principal, reward, nil
}

// DeclareEmergency freezes the pool. The transition is one-way: there is no
// operation that leaves the emergency mode.
func (e *Engine) DeclareEmergency(caller common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}

	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return ErrReentrantCall
	}
	pool, err := e.loadPool()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	pool.Mode = PoolModeEmergency
	if err := e.state.PoolPut(pool); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	e.emit(events.EmergencyDeclared{DeclaredAt: e.nowFn()})
	return nil
}

// EmergencyWithdraw closes the depositor's position and returns principal
// only; the accrued reward is forfeited. Available to any depositor once the
// emergency is declared, regardless of how the pool was locked.
func (e *Engine) EmergencyWithdraw(depositor common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}

	e.mu.Lock()
	pool, err := e.loadPool()
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if !pool.Mode.Emergency() {
		e.mu.Unlock()
		return nil, ErrNotInEmergency
	}
	pos, err := e.state.PositionGet(depositor)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if !pos.Open() {
		e.mu.Unlock()
		e.emit(events.Unstaked{Depositor: depositor, Amount: big.NewInt(0)})
		return big.NewInt(0), nil
	}
	if e.inFlight {
		e.mu.Unlock()
		return nil, ErrReentrantCall
	}

	principal := new(big.Int).Set(pos.Principal)
	port, err := e.portFor(pool.StakedAsset)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	saved := pos.Clone()
	if err := e.closePosition(pool, depositor, principal); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.inFlight = true
	e.mu.Unlock()

	terr := port.Transfer(e.poolAddress, depositor, principal)

	e.mu.Lock()
	e.inFlight = false
	if terr != nil {
		e.reopenPosition(depositor, saved)
	}
	e.mu.Unlock()
	if terr != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, terr)
	}

	e.emit(events.Unstaked{Depositor: depositor, Amount: cloneBigInt(principal)})
	return principal, nil
}

// Evacuate moves amount of the given asset out of pool custody to the
// recipient, bypassing position accounting. Only available while the pool is
// in the emergency freeze (which also implies the deposit lock). The asset
// may be the staked token, any other registered token, or NativeAsset for
// the native network currency; every branch, the native one included, is
// held to the same fail-loud transfer contract.
func (e *Engine) Evacuate(caller, asset, recipient common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errNilAmount
	}

	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return ErrReentrantCall
	}
	pool, err := e.loadPool()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if !pool.Mode.Emergency() {
		e.mu.Unlock()
		return ErrNotInEmergency
	}
	port, err := e.portFor(asset)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.inFlight = true
	e.mu.Unlock()

	terr := port.Transfer(e.poolAddress, recipient, amount)

	e.mu.Lock()
	e.inFlight = false
	e.mu.Unlock()
	if terr != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, terr)
	}

	e.emit(events.Evacuated{Asset: asset, Recipient: recipient, Amount: cloneBigInt(amount)})
	return nil
}

// PoolInfo returns a copy of the pool record.
func (e *Engine) PoolInfo() (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

// PositionOf returns a copy of the depositor's position. An absent record is
// reported as a zeroed position, matching the ledger's zero-default reads.
func (e *Engine) PositionOf(depositor common.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, err := e.state.PositionGet(depositor)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return &Position{Principal: big.NewInt(0)}, nil
	}
	return pos.Clone(), nil
}

// PreviewReward reports the reward a claim would pay the depositor right
// now, without mutating any state.
func (e *Engine) PreviewReward(depositor common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	pos, err := e.state.PositionGet(depositor)
	if err != nil {
		return nil, err
	}
	if !pos.Open() {
		return big.NewInt(0), nil
	}
	elapsed := e.nowFn() - pos.StartTime
	return RewardAmount(pos.Principal, pool.DailyYieldRateScaled, elapsed), nil
}

// closePosition zeroes the depositor's record and reduces the aggregate,
// committing both before the caller issues the outbound transfer.
func (e *Engine) closePosition(pool *Pool, depositor common.Address, principal *big.Int) error {
	if err := e.state.PositionPut(depositor, &Position{Principal: big.NewInt(0)}); err != nil {
		return err
	}
	pool.TotalStaked = new(big.Int).Sub(pool.TotalStaked, principal)
	return e.state.PoolPut(pool)
}

// unwindStake erases the position recorded for a pull that never completed.
// No funds moved, so only the ledger records are rolled back.
func (e *Engine) unwindStake(depositor common.Address, amount *big.Int) {
	if err := e.state.PositionPut(depositor, &Position{Principal: big.NewInt(0)}); err != nil {
		return
	}
	pool, err := e.loadPool()
	if err != nil {
		return
	}
	pool.TotalStaked = new(big.Int).Sub(pool.TotalStaked, amount)
	_ = e.state.PoolPut(pool)
}

// restoreMode reverts the pool mode after a failed funding pull.
func (e *Engine) restoreMode(mode PoolMode) {
	pool, err := e.loadPool()
	if err != nil {
		return
	}
	pool.Mode = mode
	_ = e.state.PoolPut(pool)
}

// reopenPosition undoes closePosition after a failed payout so the whole
// operation stays all-or-nothing. It runs with inFlight already cleared
// under the engine lock, so no nested mutation can have interleaved.
func (e *Engine) reopenPosition(depositor common.Address, saved *Position) {
	if err := e.state.PositionPut(depositor, saved); err != nil {
		return
	}
	pool, err := e.loadPool()
	if err != nil {
		return
	}
	pool.TotalStaked = new(big.Int).Add(pool.TotalStaked, saved.Principal)
	_ = e.state.PoolPut(pool)
}

func (e *Engine) loadPool() (*Pool, error) {
	pool, ok, err := e.state.PoolGet()
	if err != nil {
		return nil, err
	}
	if !ok || pool == nil {
		return nil, ErrNotInitialized
	}
	if pool.TotalStaked == nil {
		pool.TotalStaked = big.NewInt(0)
	}
	if pool.MinimumStake == nil {
		pool.MinimumStake = big.NewInt(0)
	}
	if pool.DailyYieldRateScaled == nil {
		pool.DailyYieldRateScaled = big.NewInt(0)
	}
	return pool, nil
}

func (e *Engine) portFor(asset common.Address) (TransferPort, error) {
	port, ok := e.ports[asset]
	if !ok || port == nil {
		return nil, ErrUnknownAsset
	}
	return port, nil
}

func (e *Engine) requireOwner(caller common.Address) error {
	if caller != e.owner {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) emit(p events.Payload) {
	if e == nil || e.emitter == nil || p == nil {
		return
	}
	e.emitter.Emit(p)
}
