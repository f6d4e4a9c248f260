package events

import "math/big"

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func zeroAddress(addr [20]byte) bool {
	return addr == [20]byte{}
}
