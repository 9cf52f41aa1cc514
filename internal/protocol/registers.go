package protocol

// FMC register addresses
const (
	FMCBase = 0x40022000

	RegWS     = FMCBase + 0x00
	RegKey    = FMCBase + 0x04
	RegOBKey  = FMCBase + 0x08
	RegStat   = FMCBase + 0x0C
	RegCtl    = FMCBase + 0x10
	RegAddr   = FMCBase + 0x14
	RegOBStat = FMCBase + 0x1C
	RegOBR    = FMCBase + 0x40
	RegOBUser = FMCBase + 0x44
	RegOBWRP0 = FMCBase + 0x48
	RegOBWRP1 = FMCBase + 0x4C
	RegPID0   = FMCBase + 0x100
	RegPID1   = FMCBase + 0x104
)

// FMC_STAT bits
const (
	StatBusy  = 1 << 0
	StatPGErr = 1 << 2
	StatWPErr = 1 << 4
	StatEndF  = 1 << 5
)

// FMC_CTL bits
const (
	CtlPG      = 1 << 0 // page program
	CtlPER     = 1 << 1 // page erase
	CtlMER     = 1 << 2 // mass erase
	CtlOBPG    = 1 << 4 // option program
	CtlOBER    = 1 << 5 // option erase
	CtlStart   = 1 << 6
	CtlLock    = 1 << 7
	CtlOBWEn   = 1 << 9 // option write enable
	CtlOBStart = 1 << 14
	CtlOBRld   = 1 << 15 // option reload
)

// FMC_OBSTAT bits
const (
	OBStatSPC = 1 << 1 // security protection active
	OBStatWP  = 1 << 2 // erase/program protection active
)

// Unlock keys, written in order to FMC_KEY and FMC_OBKEY.
const (
	UnlockKey0 = 0x45670123
	UnlockKey1 = 0xCDEF89AB
)

// Option byte reset values
const (
	WRPDisabled  = 0x000003FF
	OBUserErased = 0xFFFFFFFF
	OBRErased    = 0x00000EAA

	// WRPMaxPage is the highest page a 10-bit write protect field holds.
	WRPMaxPage = 0x3FF

	// SPCNone is the protection level byte meaning "no security protection".
	// Any other value enables level 1 protection.
	SPCNone = 0xAA
	// SPCLevel1 is the value written by the lock operation.
	SPCLevel1 = 0x00
)

// Polling budgets
const (
	UnlockRetries = 100

	// ReadyTimeout is the tick budget (one tick ~ 1ms) for erase and
	// option byte operations.
	ReadyTimeout = 0x01000000

	// WordTimeout is the tick budget for a single word program.
	WordTimeout = 5
)

// StatusString returns a readable description of FMC_STAT.
func StatusString(stat uint32) string {
	s := ""
	if stat&StatBusy != 0 {
		s += "busy "
	}
	if stat&StatPGErr != 0 {
		s += "pgerr "
	}
	if stat&StatWPErr != 0 {
		s += "wperr "
	}
	if stat&StatEndF != 0 {
		s += "end "
	}
	if s == "" {
		return "idle"
	}
	return s[:len(s)-1]
}
