package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bigbag/gdflash/internal/protocol"
	"github.com/bigbag/gdflash/internal/serial"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	portFlag         string
	baudFlag         int
	remoteFlag       string
	bankSizeFlag     uint32
	workAreaBaseFlag uint32
	workAreaSizeFlag uint32
	noHaltFlag       bool
	offsetFlag       uint32
	scanFlag         bool
)

func main() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)

	err := newRootCmd().Execute()
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gdflash",
		Short: "Program GD32VW55x flash through a GDB stub",
		Long: `gdflash erases, programs and protects the internal flash of GD32VW55x
RISC-V microcontrollers, and edits their option bytes.

The target is reached through a debug probe serving the GDB remote
protocol, either on a serial port (auto-detected if --port is not given)
or over TCP with --remote host:port.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// glog reads its settings from the go flag set
			if !flag.Parsed() {
				flag.CommandLine.Parse(nil)
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&portFlag, "port", "p", "", "Serial port of the probe (auto-detect if not specified)")
	pf.IntVarP(&baudFlag, "baud", "b", serial.DefaultBaudRate, "Baud rate")
	pf.StringVar(&remoteFlag, "remote", "", "host:port of a TCP gdbserver (overrides --port)")
	pf.Uint32Var(&bankSizeFlag, "bank-size", 0, "Flash bank size in bytes (0 = read from the device)")
	pf.Uint32Var(&workAreaBaseFlag, "work-area-base", protocol.WorkAreaBase, "Start of target RAM usable as scratch memory")
	pf.Uint32Var(&workAreaSizeFlag, "work-area-size", protocol.WorkAreaSize, "Size of target RAM usable as scratch memory")
	pf.BoolVar(&noHaltFlag, "no-halt", false, "Do not halt the core before operating")

	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "Identify the device and its flash bank",
		Args:  cobra.NoArgs,
		RunE:  runProbe,
	}

	eraseCmd := &cobra.Command{
		Use:   "erase <first> <last>",
		Short: "Erase sectors first through last",
		Long: `Erase sectors first through last (inclusive). Erasing every sector
performs a mass erase.`,
		Args: cobra.ExactArgs(2),
		RunE: runErase,
	}

	massEraseCmd := &cobra.Command{
		Use:   "mass-erase",
		Short: "Erase the whole bank",
		Args:  cobra.NoArgs,
		RunE:  runMassErase,
	}

	writeCmd := &cobra.Command{
		Use:   "write <image.bin|image.hex>",
		Short: "Program an image into erased flash",
		Long: `Program a raw binary at --offset from the bank base, or an Intel HEX
image at the addresses it carries. The target sectors must be erased
first.`,
		Args: cobra.ExactArgs(1),
		RunE: runWrite,
	}
	writeCmd.Flags().Uint32Var(&offsetFlag, "offset", 0, "Offset from the bank base for raw binaries")

	protectCmd := &cobra.Command{
		Use:   "protect <on|off> <first> <last>",
		Short: "Set or clear write protection on a sector range",
		Args:  cobra.ExactArgs(3),
		RunE:  runProtect,
	}

	protectCheckCmd := &cobra.Command{
		Use:   "protect-check",
		Short: "Show which sectors are write protected",
		Args:  cobra.NoArgs,
		RunE:  runProtectCheck,
	}

	obCmd := &cobra.Command{
		Use:   "ob",
		Short: "Read and edit option bytes",
	}
	obCmd.AddCommand(
		&cobra.Command{
			Use:   "read",
			Short: "Show the option byte registers",
			Args:  cobra.NoArgs,
			RunE:  runOptionRead,
		},
		&cobra.Command{
			Use:   "write <USER|SPC|WRP0|WRP1> <value>",
			Short: "Write one option byte field",
			Args:  cobra.ExactArgs(2),
			RunE:  runOptionWrite,
		},
		&cobra.Command{
			Use:   "reload",
			Short: "Reload option bytes into the controller (may reset the device)",
			Args:  cobra.NoArgs,
			RunE:  runOptionReload,
		},
	)

	lockCmd := &cobra.Command{
		Use:   "lock",
		Short: "Enable security protection",
		Args:  cobra.NoArgs,
		RunE:  runLock,
	}

	unlockCmd := &cobra.Command{
		Use:   "unlock",
		Short: "Disable security protection",
		Args:  cobra.NoArgs,
		RunE:  runUnlock,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	listCmd.Flags().BoolVar(&scanFlag, "scan", false, "Query every port and list only those where a GDB stub answers")

	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Run commands interactively on one connection",
		Args:  cobra.NoArgs,
		RunE:  runShell,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gdflash %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	rootCmd.AddCommand(
		probeCmd,
		eraseCmd,
		massEraseCmd,
		writeCmd,
		protectCmd,
		protectCheckCmd,
		obCmd,
		lockCmd,
		unlockCmd,
		listCmd,
		shellCmd,
		versionCmd,
	)
	return rootCmd
}
