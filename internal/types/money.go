// README: Common money value object used across modules.
package types

// Money is an amount in the currency's smallest unit (paise for INR).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}
