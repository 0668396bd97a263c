package staking

import "math/big"

const secondsPerDay = 86_400

// rateScale is the fixed-point denominator for the daily yield rate:
// 100_000_000 denotes 100% per day.
var rateScale = big.NewInt(100_000_000)

// RewardAmount computes the time-proportional yield for a principal staked
// for elapsedSeconds at the given scaled daily rate.
//
// The full product principal * elapsedSeconds * rate is formed first, then
// truncated by secondsPerDay and finally by the rate scale. The division
// order is load-bearing: truncating earlier (for example reducing the rate
// to a per-second figure up front) loses up to a day's worth of rounding and
// yields different results for some inputs. big.Int keeps the intermediate
// product exact at any magnitude.
func RewardAmount(principal, dailyYieldRateScaled *big.Int, elapsedSeconds int64) *big.Int {
	if principal == nil || principal.Sign() <= 0 ||
		dailyYieldRateScaled == nil || dailyYieldRateScaled.Sign() <= 0 ||
		elapsedSeconds <= 0 {
		return big.NewInt(0)
	}
	reward := new(big.Int).Mul(principal, big.NewInt(elapsedSeconds))
	reward.Mul(reward, dailyYieldRateScaled)
	reward.Quo(reward, big.NewInt(secondsPerDay))
	reward.Quo(reward, rateScale)
	return reward
}
