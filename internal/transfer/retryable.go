package transfer

import (
	"errors"
	"strings"
)

// CodeBalanceInsufficient is the provider's structured code for funds that
// have not yet settled into the available balance.
const CodeBalanceInsufficient = "balance_insufficient"

// transientFragments match the provider's human-readable wording for the
// funds-not-yet-available class. Fallback only; the structured code wins
// when present.
var transientFragments = []string{
	"insufficient",
	"available balance",
	"balance is not sufficient",
	"insufficient funds",
	"cannot create a transfer",
}

// IsTransient reports whether a transfer-creation failure is expected to
// resolve on its own once funds settle, making it eligible for the sweeper.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var perr *ProviderError
	if errors.As(err, &perr) && perr.Code != "" {
		return perr.Code == CodeBalanceInsufficient
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range transientFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
