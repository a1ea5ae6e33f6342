// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

import (
	"context"
	"errors"

	"github.com/google/gousb"
)

var libUsbCtx *gousb.Context

// InitUSB opens the process-wide libusb context. It is idempotent; a
// second call logs a warning and returns nil.
func InitUSB() error {
	if libUsbCtx != nil {
		logger.Warn("libusb context already initialized")
		return nil
	}

	libUsbCtx = gousb.NewContext()
	if libUsbCtx == nil {
		return errors.New("could not initialize libusb context")
	}

	return nil
}

// CloseUSB releases the process-wide libusb context opened by InitUSB.
func CloseUSB() {
	if libUsbCtx == nil {
		logger.Warn("tried to close non-initialized libusb context")
		return
	}

	libUsbCtx.Close()
	libUsbCtx = nil
}

func idExists(ids []gousb.ID, id gousb.ID) bool {
	for _, want := range ids {
		if want == id || want == gousb.ID(AllSupportedVIds) {
			return true
		}
	}
	return false
}

func usbFindDevices(vids []gousb.ID, pids []gousb.ID) ([]*gousb.Device, error) {
	devices, err := libUsbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if idExists(vids, desc.Vendor) && idExists(pids, desc.Product) {
			logger.Debugf("inspect usb device [%04x:%04x] on bus %03d:%03d...",
				uint16(desc.Vendor), uint16(desc.Product), desc.Bus, desc.Address)
			return true
		}
		return false
	})

	// OpenDevices' error is ignored as long as we got at least one valid
	// device handle back: the error has no information on which specific
	// candidate device it refers to.
	if len(devices) > 0 {
		return devices, nil
	}

	return nil, err
}

func usbWrite(endpoint *gousb.OutEndpoint, buffer []byte) (int, error) {
	opCtx, done := context.WithTimeout(context.Background(), Timeout)
	defer done()

	bytesWritten, err := endpoint.WriteContext(opCtx, buffer)
	if err != nil {
		return 0, newTransportError("usb write", err)
	}

	logger.Tracef("%d bytes -> EP-%d", bytesWritten, endpoint.Desc.Number)
	return bytesWritten, nil
}

func usbRead(endpoint *gousb.InEndpoint, buffer []byte) (int, error) {
	opCtx, done := context.WithTimeout(context.Background(), Timeout)
	defer done()

	bytesRead, err := endpoint.ReadContext(opCtx, buffer)
	if err != nil {
		return 0, newTransportError("usb read", err)
	}

	logger.Tracef("EP-%d -> %d bytes", endpoint.Desc.Number, bytesRead)

	if bytesRead < len(buffer) {
		return bytesRead, ErrNotEnoughBytesRead
	}

	return bytesRead, nil
}
