package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeWallet AccountSubType = iota

	// System sub-types
	SubTypeEscrow
	SubTypeTreasury
)

// AccountKey is the in-memory key for balance tracking. The ledger carries a
// single native asset, so there is no asset dimension.
type AccountKey struct {
	Scope    AccountScope
	EntityID common.Address // participant for user accounts, zero for system accounts
	SubType  AccountSubType
}

// UserWallet is the participant's external wallet as seen by the market.
// Its balance is the participant's net position against the market: negative
// after a wager, raised back by payouts and refunds.
func UserWallet(addr common.Address) AccountKey {
	return AccountKey{Scope: AccountScopeUser, EntityID: addr, SubType: SubTypeWallet}
}

// Escrow holds every staked amount not yet paid out or swept.
func Escrow() AccountKey {
	return AccountKey{Scope: AccountScopeSystem, SubType: SubTypeEscrow}
}

// TreasuryAccount mirrors the treasury accumulator.
func TreasuryAccount() AccountKey {
	return AccountKey{Scope: AccountScopeSystem, SubType: SubTypeTreasury}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeUser:
		return fmt.Sprintf("user:%s:%s", strings.ToLower(k.EntityID.Hex()), k.subTypeName())
	case AccountScopeSystem:
		return "system:" + k.subTypeName()
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeWallet:
		return "wallet"
	case SubTypeEscrow:
		return "escrow"
	case SubTypeTreasury:
		return "treasury"
	default:
		return "unknown"
	}
}

// ParseAccountPath is the inverse of AccountPath, used when balances are
// reloaded from storage.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")
	switch {
	case len(parts) == 2 && parts[0] == "system":
		switch parts[1] {
		case "escrow":
			return Escrow(), nil
		case "treasury":
			return TreasuryAccount(), nil
		}
	case len(parts) == 3 && parts[0] == "user" && parts[2] == "wallet":
		if !common.IsHexAddress(parts[1]) {
			return AccountKey{}, fmt.Errorf("account path %q: invalid address", path)
		}
		return UserWallet(common.HexToAddress(parts[1])), nil
	}
	return AccountKey{}, fmt.Errorf("unknown account path %q", path)
}
