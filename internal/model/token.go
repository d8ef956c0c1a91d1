package model

import "strings"

// TokenID is an opaque ledger identifier for a token.
type TokenID string

// Normalize lowercases hex-style ids so lookups are case-insensitive.
func (t TokenID) Normalize() TokenID {
	return TokenID(strings.ToLower(strings.TrimSpace(string(t))))
}

// Token is a token id with its decimal precision.
type Token struct {
	ID       TokenID `json:"id"`
	Decimals uint8   `json:"decimals"`
	Symbol   string  `json:"symbol,omitempty"`
}
