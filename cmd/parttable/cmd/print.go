// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"

	"github.com/siderolabs/go-parttable/detect"
	"github.com/siderolabs/go-parttable/internal/isostructs"
)

func printReport(w io.Writer, rep *report) error {
	info := rep.info

	fmt.Fprintf(w, "scheme: %s\n", info.Scheme)
	fmt.Fprintf(w, "size: %s (%d bytes)\n", humanize.IBytes(info.Size), info.Size)
	fmt.Fprintf(w, "sector size: %d\n", info.SectorSize)

	if info.DiskGUID != nil {
		fmt.Fprintf(w, "disk guid: %s\n", info.DiskGUID)
	}

	if info.DiskSignature != nil {
		fmt.Fprintf(w, "disk signature: %#08x\n", *info.DiskSignature)
	}

	if info.VolumeLabel != nil {
		fmt.Fprintf(w, "volume label: %s\n", *info.VolumeLabel)
	}

	if len(info.Partitions) == 0 {
		return nil
	}

	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)

	fmt.Fprintln(tw, strings.Join([]string{"NUMBER", "START", "END", "SIZE", "BOOT", "TYPE", "LABEL", "PATH"}, "\t"))

	for _, part := range info.Partitions {
		printPartition(tw, part)

		// logical drives follow their extended container
		for _, logical := range rep.logical[part.Number] {
			printPartition(tw, logical)
		}
	}

	return tw.Flush()
}

func printPartition(w io.Writer, part detect.Partition) {
	size := humanize.IBytes((part.EndLBA - part.StartLBA + 1) * uint64(part.BlockSize))

	boot, typ, label := "-", "-", "-"

	switch {
	case part.GPT != nil:
		typ = part.GPT.TypeGUID.String()

		if part.GPT.Name != "" {
			label = part.GPT.Name
		}

		if part.ESP {
			boot = "*"
		}
	case part.MBR != nil:
		typ = fmt.Sprintf("%#04x", part.MBR.OSType)

		if part.MBR.Logical {
			typ += " (logical)"
		}

		if part.MBR.BootIndicator == 0x80 {
			boot = "*"
		}
	case part.ElTorito != nil:
		typ = mediaName(part.ElTorito.MediaType)
		boot = "*"
	}

	fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
		part.Number, part.StartLBA, part.EndLBA, size, boot, typ, label, part.Path)
}

func mediaName(mediaType uint8) string {
	switch mediaType {
	case isostructs.MediaNoEmulation:
		return "no-emulation"
	case isostructs.Media12MBFloppy:
		return "1.2MB-floppy"
	case isostructs.Media144MBFloppy:
		return "1.44MB-floppy"
	case isostructs.Media288MBFloppy:
		return "2.88MB-floppy"
	case isostructs.MediaHardDisk:
		return "hard-disk"
	default:
		return fmt.Sprintf("%#04x", mediaType)
	}
}
