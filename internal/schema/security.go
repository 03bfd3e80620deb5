package schema

import "github.com/yanun0323/decimal"

// Security is the minimum contract-reference data a matcher or overlay
// needs to convert price movement into position value: what a whole
// point of price is worth (Multiplier) and the smallest price increment
// (PriceTick).
type Security struct {
	Code       string
	Exchange   string
	Name       string
	Multiplier decimal.Decimal
	PriceTick  decimal.Decimal
}
