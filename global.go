package jitlink

import (
	"os"
	"sync"
)

// The process-wide firmware table cache. Built once, read-only, invalidated
// only by an explicit reload, never an implicit singleton rebuilt behind the
// caller's back.
var (
	gmu    sync.RWMutex
	gtable *FirmwareTable
)

// UseGlobalFirmware parses image into the process-wide cached table. It does
// nothing if a table is already cached, use ReloadGlobalFirmware to swap the
// base image.
func UseGlobalFirmware(image []byte) error {
	gmu.Lock()
	defer gmu.Unlock()
	if gtable != nil {
		return nil
	}
	t, err := LoadFirmware(image)
	if err != nil {
		return err
	}
	gtable = t
	return nil
}

// UseGlobalFirmwareFile is UseGlobalFirmware over a file path.
func UseGlobalFirmwareFile(path string) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return UseGlobalFirmware(image)
}

// ReloadGlobalFirmware discards the cached table and parses image anew. Only
// call when no link operation is mid-flight against the old table; tables
// already handed to linkers stay valid, they simply describe the old image.
func ReloadGlobalFirmware(image []byte) error {
	t, err := LoadFirmware(image)
	if err != nil {
		return err
	}
	gmu.Lock()
	gtable = t
	gmu.Unlock()
	return nil
}

// GlobalFirmware fetches the cached table, nil when none was loaded.
func GlobalFirmware() *FirmwareTable {
	gmu.RLock()
	defer gmu.RUnlock()
	return gtable
}
