// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Saad Alam

package usbbulk

import (
	"fmt"

	"github.com/gotmc/libusb"
)

// Info describes one enumerated device matching a VID:PID filter.
type Info struct {
	Ordinal    int // position among the matches, platform order
	VendorID   uint16
	ProductID  uint16
	BCDRelease uint16
	Serial     string // empty when absent or unreadable
}

func (i Info) String() string {
	s := fmt.Sprintf("#%d %04X:%04X rel 0x%04X", i.Ordinal, i.VendorID, i.ProductID, i.BCDRelease)
	if i.Serial != "" {
		s += fmt.Sprintf(" serial %q", i.Serial)
	}
	return s
}

// ListDevices walks the bus and returns every device matching vid:pid
// in platform enumeration order, using a short-lived private context.
// Serial numbers are read best-effort; devices that cannot be opened
// still appear with an empty Serial.
func ListDevices(vid, pid uint16) ([]Info, error) {
	ctx, err := libusb.NewContext()
	if err != nil {
		return nil, fmt.Errorf("usbbulk: init context: %v", err)
	}
	defer ctx.Close()

	devices, err := ctx.GetDeviceList()
	if err != nil {
		return nil, fmt.Errorf("usbbulk: get device list: %v", err)
	}

	var infos []Info
	for _, dev := range devices {
		desc, err := dev.GetDeviceDescriptor()
		if err != nil {
			continue
		}
		if desc.VendorID != vid || desc.ProductID != pid {
			continue
		}

		info := Info{
			Ordinal:    len(infos),
			VendorID:   desc.VendorID,
			ProductID:  desc.ProductID,
			BCDRelease: desc.DeviceReleaseNumber,
		}
		if desc.SerialNumberIndex != 0 {
			if handle, err := dev.Open(); err == nil {
				if sn, err := handle.GetStringDescriptorASCII(desc.SerialNumberIndex); err == nil {
					info.Serial = sn
				}
				handle.Close()
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}
