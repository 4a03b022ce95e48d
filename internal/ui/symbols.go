package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess = "✓" // Operation succeeded
	SymbolFail    = "✗" // Operation failed
	SymbolPending = "○" // Not yet started
	SymbolArrow   = "→" // Transfer direction
)
