package domain

// Token is a fungible token contract as known to the exchange.
type Token struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

func (t Token) IsZero() bool {
	return t.ID == ""
}
