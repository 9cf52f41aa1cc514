package embedded

import (
	_ "embed"
)

//go:embed write_agent.bin
var writeAgent []byte

// Offsets into the write agent. Execution starts at the entry, which jumps
// over an ebreak; the agent returns to the ebreak at the exit offset when
// the word count reaches zero or the controller reports an error.
const (
	WriteAgentEntry = 0
	WriteAgentExit  = 4
)

// WriteAgent returns the RISC-V flash write loop that is loaded into target
// RAM for buffered programming.
func WriteAgent() []byte {
	return writeAgent
}
