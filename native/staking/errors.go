package staking

import "errors"

// Each precondition violation maps to one sentinel so callers can branch
// with errors.Is. Every failure aborts the operation with zero state change.
var (
	ErrInvalidConfig         = errors.New("staking engine: invalid pool configuration")
	ErrAlreadyInitialized    = errors.New("staking engine: pool already initialized")
	ErrNotInitialized        = errors.New("staking engine: pool not initialized")
	ErrUnauthorized          = errors.New("staking engine: caller is not the owner")
	ErrInsufficientAllowance = errors.New("staking engine: insufficient allowance")
	ErrPoolLocked            = errors.New("staking engine: pool locked")
	ErrEmergencyActive       = errors.New("staking engine: emergency active")
	ErrNotInEmergency        = errors.New("staking engine: not in emergency")
	ErrBelowMinimum          = errors.New("staking engine: amount below minimum stake")
	ErrPositionExists        = errors.New("staking engine: position already open")
	ErrTransferFailed        = errors.New("staking engine: asset transfer failed")
	ErrUnknownAsset          = errors.New("staking engine: no transfer port for asset")
	ErrReentrantCall         = errors.New("staking engine: reentrant call")

	errNilState  = errors.New("staking engine: state not configured")
	errNilAmount = errors.New("staking engine: amount must be positive")
)
