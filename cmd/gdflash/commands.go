package main

import (
	"fmt"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bigbag/gdflash/internal/detect"
	"github.com/bigbag/gdflash/internal/flasher"
	"github.com/bigbag/gdflash/internal/protocol"
	"github.com/bigbag/gdflash/internal/serial"
)

func parseSector(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid sector number %q", s)
	}
	return n, nil
}

func parseRange(first, last string) (int, int, error) {
	a, err := parseSector(first)
	if err != nil {
		return 0, 0, err
	}
	b, err := parseSector(last)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("want on or off, got %q", s)
}

func runProbe(cmd *cobra.Command, args []string) error {
	return withFlasher(func(f *flasher.Flasher) error {
		if err := f.Probe(); err != nil {
			return err
		}
		b := f.Bank()
		source := "detected"
		if b.Identity.Configured {
			source = "configured"
		}
		fmt.Printf("Device ID:  0x%08X\n", b.Identity.DeviceID)
		fmt.Printf("Flash size: %d KB (%s)\n", b.Identity.FlashSizeKB, source)
		fmt.Printf("Bank:       0x%08X, %d sectors of %d bytes\n", b.Base, len(b.Sectors), b.PageSize)
		return nil
	})
}

func runErase(cmd *cobra.Command, args []string) error {
	first, last, err := parseRange(args[0], args[1])
	if err != nil {
		return err
	}
	return withFlasher(func(f *flasher.Flasher) error {
		if err := f.Erase(first, last); err != nil {
			return err
		}
		fmt.Printf("Erased sectors %d through %d\n", first, last)
		return nil
	})
}

func runMassErase(cmd *cobra.Command, args []string) error {
	return withFlasher(func(f *flasher.Flasher) error {
		if err := f.MassErase(); err != nil {
			return err
		}
		fmt.Println("Mass erase complete")
		return nil
	})
}

func runWrite(cmd *cobra.Command, args []string) error {
	segments, err := loadImage(args[0], offsetFlag)
	if err != nil {
		return err
	}
	total := imageSize(segments)
	fmt.Printf("Image: %s (%d bytes, %d segment(s))\n", args[0], total, len(segments))

	return withFlasher(func(f *flasher.Flasher) error {
		bar := progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Writing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100),
			progressbar.OptionClearOnFinish(),
		)
		defer f.SetProgressCallback(nil)

		done := 0
		for _, s := range segments {
			f.SetProgressCallback(func(current, _ int) {
				bar.Set(done + current)
			})

			fmt.Printf("\nWriting %d bytes at 0x%08X...\n", len(s.Data), protocol.BankBase+s.Offset)
			if err := f.Write(s.Offset, s.Data); err != nil {
				return err
			}
			done += len(s.Data)
		}

		bar.Finish()
		fmt.Println("\nWrite complete!")
		return nil
	})
}

func runProtect(cmd *cobra.Command, args []string) error {
	set, err := parseOnOff(args[0])
	if err != nil {
		return err
	}
	first, last, err := parseRange(args[1], args[2])
	if err != nil {
		return err
	}
	return withFlasher(func(f *flasher.Flasher) error {
		c, err := f.Protect(set, first, last)
		if err != nil {
			return err
		}
		if c == nil {
			fmt.Println("Empty range, nothing to do")
			return nil
		}
		printCommit(c)
		return nil
	})
}

func runProtectCheck(cmd *cobra.Command, args []string) error {
	return withFlasher(func(f *flasher.Flasher) error {
		if err := f.ProtectCheck(); err != nil {
			return err
		}
		b := f.Bank()
		fmt.Printf("Security protection:      %v\n", b.Flags.Security)
		fmt.Printf("Erase/program protection: %v\n", b.Flags.EraseProgram)

		ranges := b.ProtectedSectors()
		if len(ranges) == 0 {
			fmt.Println("No sectors write protected")
			return nil
		}
		fmt.Println("Write protected sectors:")
		for _, r := range ranges {
			fmt.Printf("  %d-%d\n", r.Start, r.End)
		}
		return nil
	})
}

func runOptionRead(cmd *cobra.Command, args []string) error {
	return withFlasher(func(f *flasher.Flasher) error {
		r, err := f.ReadOptions()
		if err != nil {
			return err
		}
		fmt.Printf("OBSTAT: 0x%08X (security %v, erase/program %v)\n", r.OBStat, r.Flags.Security, r.Flags.EraseProgram)
		fmt.Printf("OBR:    0x%08X (SPC 0x%02X)\n", r.OBR, r.SPC())
		fmt.Printf("USER:   0x%08X\n", r.User)
		for i, w := range r.WRP {
			fmt.Printf("WRP%d:   0x%08X (%s)\n", i, w, protocol.DecodeRange(w))
		}
		return nil
	})
}

func runOptionWrite(cmd *cobra.Command, args []string) error {
	field, err := protocol.ParseOptionField(args[0])
	if err != nil {
		return err
	}
	value, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[1], err)
	}
	return withFlasher(func(f *flasher.Flasher) error {
		c, err := f.WriteOption(field, uint32(value))
		if err != nil {
			return err
		}
		printCommit(c)
		return nil
	})
}

func runOptionReload(cmd *cobra.Command, args []string) error {
	return withFlasher(func(f *flasher.Flasher) error {
		if err := f.Reload(); err != nil {
			return err
		}
		fmt.Println("Option bytes reloaded")
		return nil
	})
}

func runLock(cmd *cobra.Command, args []string) error {
	return withFlasher(func(f *flasher.Flasher) error {
		c, err := f.Lock()
		if err != nil {
			return err
		}
		printCommit(c)
		return nil
	})
}

func runUnlock(cmd *cobra.Command, args []string) error {
	return withFlasher(func(f *flasher.Flasher) error {
		c, err := f.Unlock()
		if err != nil {
			return err
		}
		printCommit(c)
		return nil
	})
}

func printCommit(c *flasher.Commit) {
	fmt.Println("Option bytes written:")
	fmt.Printf("  SPC:  0x%02X\n", c.Options.SPC)
	fmt.Printf("  USER: 0x%08X\n", c.Options.User)
	for i, w := range c.Options.WRP {
		fmt.Printf("  WRP%d: 0x%08X (%s)\n", i, w, protocol.DecodeRange(w))
	}
	if c.ReloadRequired {
		fmt.Println("Reset or power cycle the device (or run 'ob reload') for the new values to take effect")
	}
}

func runList(cmd *cobra.Command, args []string) error {
	if scanFlag {
		return runScan()
	}

	ports, err := serial.ListPortDetails()
	if err != nil {
		return err
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	fmt.Println("Available serial ports:")
	for _, p := range ports {
		mark := " "
		if p.Probe() {
			mark = "*"
		}
		fmt.Printf(" %s %s\n", mark, p)
	}
	return nil
}

func runScan() error {
	fmt.Println("Scanning for GDB stubs...")
	devices, err := detect.ListDevices(baudFlag)
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Println("No GDB stubs found")
		return nil
	}

	fmt.Printf("Found %d stub(s):\n", len(devices))
	for _, d := range devices {
		fmt.Printf("  %s\n", &d)
	}
	return nil
}
