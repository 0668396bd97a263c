package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"stakepool/native/staking"
	"stakepool/storage"
)

var (
	poolKey        = []byte("staking/pool")
	positionPrefix = []byte("staking/position/")
)

// Manager persists the pool singleton and per-depositor positions to a
// key-value store, RLP-encoded under prefixed keys. It implements the
// staking engine's persistence interface.
type Manager struct {
	db storage.Database
}

// NewManager binds a manager to the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// poolRecord is the storage encoding of the pool. RLP has no signed integers
// so the mode rides as a uint8.
type poolRecord struct {
	StakedAsset          common.Address
	TotalStaked          *big.Int
	MinimumStake         *big.Int
	DailyYieldRateScaled *big.Int
	Mode                 uint8
}

// positionRecord is the storage encoding of one position. StartTime is a
// unix timestamp and never negative.
type positionRecord struct {
	Principal *big.Int
	StartTime uint64
}

// PoolGet loads the pool record, reporting absence without error.
func (m *Manager) PoolGet() (*staking.Pool, bool, error) {
	raw, err := m.db.Get(poolKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("state: load pool: %w", err)
	}
	var rec poolRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("state: decode pool: %w", err)
	}
	mode := staking.PoolMode(rec.Mode)
	if !mode.Valid() {
		return nil, false, fmt.Errorf("state: corrupt pool mode %d", rec.Mode)
	}
	return &staking.Pool{
		StakedAsset:          rec.StakedAsset,
		TotalStaked:          ensureBig(rec.TotalStaked),
		MinimumStake:         ensureBig(rec.MinimumStake),
		DailyYieldRateScaled: ensureBig(rec.DailyYieldRateScaled),
		Mode:                 mode,
	}, true, nil
}

// PoolPut persists the pool record.
func (m *Manager) PoolPut(pool *staking.Pool) error {
	if pool == nil {
		return fmt.Errorf("state: nil pool")
	}
	raw, err := rlp.EncodeToBytes(&poolRecord{
		StakedAsset:          pool.StakedAsset,
		TotalStaked:          ensureBig(pool.TotalStaked),
		MinimumStake:         ensureBig(pool.MinimumStake),
		DailyYieldRateScaled: ensureBig(pool.DailyYieldRateScaled),
		Mode:                 uint8(pool.Mode),
	})
	if err != nil {
		return fmt.Errorf("state: encode pool: %w", err)
	}
	return m.db.Put(poolKey, raw)
}

// PositionGet loads a depositor's position. Absent records return nil; the
// engine treats absent and zeroed records as the same logical state.
func (m *Manager) PositionGet(addr common.Address) (*staking.Position, error) {
	raw, err := m.db.Get(positionKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: load position: %w", err)
	}
	var rec positionRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, fmt.Errorf("state: decode position: %w", err)
	}
	return &staking.Position{
		Principal: ensureBig(rec.Principal),
		StartTime: int64(rec.StartTime),
	}, nil
}

// PositionPut persists a depositor's position. Zeroed records are stored
// rather than deleted, matching the ledger's logical-zeroing semantics.
func (m *Manager) PositionPut(addr common.Address, pos *staking.Position) error {
	if pos == nil {
		return fmt.Errorf("state: nil position")
	}
	start := pos.StartTime
	if start < 0 {
		start = 0
	}
	raw, err := rlp.EncodeToBytes(&positionRecord{
		Principal: ensureBig(pos.Principal),
		StartTime: uint64(start),
	})
	if err != nil {
		return fmt.Errorf("state: encode position: %w", err)
	}
	return m.db.Put(positionKey(addr), raw)
}

func positionKey(addr common.Address) []byte {
	key := make([]byte, 0, len(positionPrefix)+common.AddressLength)
	key = append(key, positionPrefix...)
	return append(key, addr.Bytes()...)
}

func ensureBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
