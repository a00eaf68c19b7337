package gateway

// SymbolInfo describes one watched symbol. /api/config does not use it: it
// returns its symbol list as plain strings.
type SymbolInfo struct {
	Symbol string `json:"symbol"`
}
