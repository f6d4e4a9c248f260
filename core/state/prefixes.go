package state

// RoleAccrualAdmin gates schedule administration and backfill operations.
const RoleAccrualAdmin = "ROLE_ACCRUAL_ADMIN"

var (
	tokenPrefix   = []byte("token:")
	tokenListKey  = []byte("token-list")
	balancePrefix = []byte("balance:")
	rolePrefix    = []byte("role:")

	accrualScheduleKey   = []byte("accrual/schedule")
	accrualEpochsKey     = []byte("accrual/epochs")
	accrualTotalUnitsKey = []byte("accrual/units/total")

	accrualDayKeyFormat        = "accrual/day/%d"
	accrualPendingKeyFormat    = "accrual/pending/%s/%d"
	accrualCheckpointKeyFormat = "accrual/checkpoints/%s/%x"
	accrualClaimKeyFormat      = "accrual/claim/%s/%x"
	accrualReceiptsKeyFormat   = "accrual/receipts/%x"
	accrualCodeByAddrFormat    = "accrual/code/addr/%x"
	accrualCodeByValueFormat   = "accrual/code/value/%s"
	accrualBuybackKeyFormat    = "accrual/buyback/%x"
)
