package jitlink

import (
	"sort"

	"github.com/davecgh/go-spew/spew"
)

// Inspect displays the symbols defined inside an object file.
func Inspect(object []byte) ([]string, error) {
	obj, err := ParseObject(object)
	if err != nil {
		return nil, err
	}
	locals := obj.Locals()
	v := make([]string, 0, len(locals))
	for _, s := range locals {
		v = append(v, s.Name)
	}
	sort.Strings(v)
	return v, nil
}

// Exports displays the exported symbols of a firmware image.
func Exports(image []byte) ([]Symbol, error) {
	t, err := LoadFirmware(image)
	if err != nil {
		return nil, err
	}
	return t.Exports(), nil
}

// References displays what an object needs from outside itself, in
// first-reference order.
func References(object []byte) ([]string, error) {
	obj, err := ParseObject(object)
	if err != nil {
		return nil, err
	}
	return obj.Unresolved(), nil
}

// Dump renders any engine value for debug output.
func Dump(v any) string {
	return spew.Sdump(v)
}
