package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeStaked captures a new deposit entering pool custody.
	TypeStaked = "staking.staked"
	// TypeUnstaked captures principal leaving pool custody via claim or
	// emergency exit.
	TypeUnstaked = "staking.unstaked"
	// TypeRewardWithdrawn captures the yield portion of a claim payout.
	TypeRewardWithdrawn = "staking.rewardWithdrawn"
	// TypePoolCharged is emitted when the owner funds the pool and opens
	// deposits.
	TypePoolCharged = "staking.poolCharged"
	// TypeEmergencyDeclared is emitted when the owner freezes the pool.
	TypeEmergencyDeclared = "staking.emergencyDeclared"
	// TypeEvacuated captures an owner-directed fund movement outside
	// position accounting.
	TypeEvacuated = "staking.evacuated"
)

// Staked captures the deposit realised when a position is opened.
type Staked struct {
	Depositor common.Address
	Amount    *big.Int
	StartTime int64
}

// EventType satisfies the Payload interface.
func (Staked) EventType() string { return TypeStaked }

// Event converts the structured payload into a broadcastable event.
func (e Staked) Event() *Event {
	return &Event{Type: TypeStaked, Attributes: map[string]string{
		"depositor": e.Depositor.Hex(),
		"amount":    formatAmount(e.Amount),
		"startTime": strconv.FormatInt(e.StartTime, 10),
	}}
}

// Unstaked captures the principal returned when a position is closed. A
// zero-amount payload marks a claim issued against an empty position.
type Unstaked struct {
	Depositor common.Address
	Amount    *big.Int
}

// EventType satisfies the Payload interface.
func (Unstaked) EventType() string { return TypeUnstaked }

// Event converts the structured payload into a broadcastable event.
func (e Unstaked) Event() *Event {
	return &Event{Type: TypeUnstaked, Attributes: map[string]string{
		"depositor": e.Depositor.Hex(),
		"amount":    formatAmount(e.Amount),
	}}
}

// RewardWithdrawn captures the accrued yield paid alongside a claim.
type RewardWithdrawn struct {
	Depositor common.Address
	Amount    *big.Int
}

// EventType satisfies the Payload interface.
func (RewardWithdrawn) EventType() string { return TypeRewardWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e RewardWithdrawn) Event() *Event {
	return &Event{Type: TypeRewardWithdrawn, Attributes: map[string]string{
		"depositor": e.Depositor.Hex(),
		"amount":    formatAmount(e.Amount),
	}}
}

// PoolCharged captures the owner funding that unlocks deposits.
type PoolCharged struct {
	Funder common.Address
	Amount *big.Int
}

// EventType satisfies the Payload interface.
func (PoolCharged) EventType() string { return TypePoolCharged }

// Event converts the structured payload into a broadcastable event.
func (e PoolCharged) Event() *Event {
	return &Event{Type: TypePoolCharged, Attributes: map[string]string{
		"funder": e.Funder.Hex(),
		"amount": formatAmount(e.Amount),
	}}
}

// EmergencyDeclared captures the irreversible owner freeze.
type EmergencyDeclared struct {
	DeclaredAt int64
}

// EventType satisfies the Payload interface.
func (EmergencyDeclared) EventType() string { return TypeEmergencyDeclared }

// Event converts the structured payload into a broadcastable event.
func (e EmergencyDeclared) Event() *Event {
	return &Event{Type: TypeEmergencyDeclared, Attributes: map[string]string{
		"declaredAt": strconv.FormatInt(e.DeclaredAt, 10),
	}}
}

// Evacuated captures a break-glass transfer issued during an emergency.
type Evacuated struct {
	Asset     common.Address
	Recipient common.Address
	Amount    *big.Int
}

// EventType satisfies the Payload interface.
func (Evacuated) EventType() string { return TypeEvacuated }

// Event converts the structured payload into a broadcastable event.
func (e Evacuated) Event() *Event {
	return &Event{Type: TypeEvacuated, Attributes: map[string]string{
		"asset":     e.Asset.Hex(),
		"recipient": e.Recipient.Hex(),
		"amount":    formatAmount(e.Amount),
	}}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
