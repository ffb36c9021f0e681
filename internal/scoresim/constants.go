package scoresim

import "time"

// Defaults applied by Config.withDefaults.
const (
	DefaultAdminID = 1
	DefaultScale   = 10
	DefaultTimeout = 30 * time.Second
)

// Token lifetime for simulated judges.
const tokenTTL = time.Hour

// PercentageMultiplier converts ratios to percentages in the final report.
const PercentageMultiplier = 100

const editReason = "simulated correction"
