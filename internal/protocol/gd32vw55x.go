package protocol

// Device layout for GD32VW55x
const (
	BankBase = 0x08000000
	PageSize = 4096

	// WRPPageSize is the number of pages covered by one write protect unit.
	WRPPageSize = 1

	DebugIDAddress   = 0xE0044000
	FlashSizeAddress = 0x1FFFF7E0

	// DefaultFlashSizeKB is assumed when the flash size register is unreadable.
	DefaultFlashSizeKB = 4096
)

// Write agent memory layout
const (
	// BlockBufferSize is the preferred size of the agent's data buffer.
	BlockBufferSize = 16384

	// MinBlockBufferSize is the size at or below which buffer allocation gives up.
	MinBlockBufferSize = 256

	// AgentTimeoutMs bounds one run of the write agent.
	AgentTimeoutMs = 10000

	// Default RAM window handed out as working areas.
	WorkAreaBase = 0x20000000
	WorkAreaSize = 0x8000
)
