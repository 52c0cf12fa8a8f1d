package compiler

// Precedence ranks binding power for the Pratt parser. Greater value means
// tighter binding.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecLowest
	PrecCond    // < > <= >= != == =
	PrecSum     // + -
	PrecProduct // * /
)
