// Package ui provides terminal output for remoteops's CLI front ends.
//
// Everything here is cosmetic: the JSON envelope printed with --json, by
// `call`, or by `serve` never passes through this package.
//
// # Components Overview
//
//	RenderEnvelope - Styled rendering of a response envelope
//	Spinner        - Animated status line while a session is open
//	HostPicker     - Interactive selection from ~/.ssh/config aliases
//	PromptPassword - Masked password entry using Huh forms
//
// # Color Scheme
//
// Colors are ANSI codes for broad terminal compatibility. ConfigureColor
// switches lipgloss to monochrome for --no-color or NO_COLOR.
package ui
