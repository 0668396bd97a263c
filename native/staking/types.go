package staking

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAsset is the reserved sentinel address selecting the native network
// currency on the evacuation path. It is distinct from any deployable token
// address.
var NativeAsset = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// PoolMode is the lifecycle state of the pool. Modelling the lock and
// emergency gates as one mode keeps illegal flag combinations
// unrepresentable: emergency always implies locked, and a pool is never
// simultaneously open and frozen.
type PoolMode uint8

const (
	// PoolModeLocked is the initialized-but-unfunded state; deposits are
	// rejected until the owner charges the pool.
	PoolModeLocked PoolMode = iota
	// PoolModeOpen accepts deposits and claims.
	PoolModeOpen
	// PoolModeEmergency is the terminal owner-declared freeze. Deposits
	// and claims are rejected; emergency exit and evacuation become
	// available.
	PoolModeEmergency
)

// Valid reports whether the mode value is within the supported range.
func (m PoolMode) Valid() bool {
	switch m {
	case PoolModeLocked, PoolModeOpen, PoolModeEmergency:
		return true
	default:
		return false
	}
}

// Locked reports whether deposits are blocked in this mode.
func (m PoolMode) Locked() bool { return m != PoolModeOpen }

// Emergency reports whether the pool is in the terminal freeze.
func (m PoolMode) Emergency() bool { return m == PoolModeEmergency }

// String renders the mode for logs and RPC responses.
func (m PoolMode) String() string {
	switch m {
	case PoolModeLocked:
		return "locked"
	case PoolModeOpen:
		return "open"
	case PoolModeEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Pool is the singleton accounting record for the staking pool. StakedAsset,
// MinimumStake and DailyYieldRateScaled are immutable after initialization;
// TotalStaked tracks the sum of all open position principals.
type Pool struct {
	StakedAsset common.Address
	TotalStaked *big.Int
	// MinimumStake is the smallest principal accepted per deposit.
	MinimumStake *big.Int
	// DailyYieldRateScaled expresses the daily yield as an integer scaled
	// by 10^8: 100_000_000 denotes 100% per day.
	DailyYieldRateScaled *big.Int
	Mode                 PoolMode
}

// Clone returns a deep copy so callers can mutate safely before persisting.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalStaked = cloneBigInt(p.TotalStaked)
	clone.MinimumStake = cloneBigInt(p.MinimumStake)
	clone.DailyYieldRateScaled = cloneBigInt(p.DailyYieldRateScaled)
	return &clone
}

// Position is one depositor's open stake. The pair invariant holds at all
// times: Principal is zero exactly when StartTime is zero, and a zeroed
// record is the same logical state as an absent one.
type Position struct {
	Principal *big.Int
	StartTime int64
}

// Open reports whether the position holds an active stake.
func (p *Position) Open() bool {
	return p != nil && p.Principal != nil && p.Principal.Sign() > 0 && p.StartTime > 0
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	return &Position{Principal: cloneBigInt(p.Principal), StartTime: p.StartTime}
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
