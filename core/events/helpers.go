package events

import (
	"math/big"
	"strconv"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func uintString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func boolString(v bool) string {
	return strconv.FormatBool(v)
}
