package chain

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

const etherDecimals = 18

// EtherToWei converts a decimal ether amount into wei without binary
// floating point rounding. Digits beyond 18 decimals are truncated.
func EtherToWei(amount float64) (*big.Int, error) {
	if amount < 0 {
		return nil, fmt.Errorf("negative amount %v", amount)
	}
	s := strconv.FormatFloat(amount, 'f', -1, 64)
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > etherDecimals {
		frac = frac[:etherDecimals]
	}
	frac += strings.Repeat("0", etherDecimals-len(frac))

	wei, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("cannot convert %q to wei", s)
	}
	return wei, nil
}

// WeiToEther formats wei as a decimal ether string.
func WeiToEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	f := new(big.Float).SetPrec(256).SetInt(wei)
	f.Quo(f, new(big.Float).SetPrec(256).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(etherDecimals), nil)))
	return f.Text('f', -1)
}
