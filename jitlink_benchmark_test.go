package jitlink

import (
	"debug/elf"
	"testing"

	"github.com/ZenLiuCN/fn"
)

func benchObject(b *testing.B) []byte {
	b.Helper()
	return buildObject(b, objSpec{
		text: mkText(insAuipcRA, insJalrRA, insJalRA, insAuipcRA, insJalrRA, insNop, insNop, insNop),
		data: make([]byte, 16),
		bss:  64,
		syms: []symDef{
			fnSym("entry", 0, 20, secText),
			fnSym("compute", 20, 12, secText),
			objSym("state", 0, 16, secData),
			undefSym("malloc"),
			undefSym("free"),
		},
		relas: []relaDef{
			{off: 0, sym: "malloc", typ: elf.R_RISCV_CALL},
			{off: 8, sym: "compute", typ: elf.R_RISCV_JAL},
			{off: 12, sym: "free", typ: elf.R_RISCV_CALL},
		},
		dataRelas: []relaDef{
			{off: 0, sym: "state", typ: elf.R_RISCV_32},
		},
	})
}

func benchTable(b *testing.B) *FirmwareTable {
	b.Helper()
	return fn.Panic1(LoadFirmware(buildFirmware(b,
		fnSym("malloc", 0x10000, 64, 0),
		fnSym("free", 0x10040, 32, 0),
	)))
}

func BenchmarkParseObject(b *testing.B) {
	object := benchObject(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fn.Panic1(ParseObject(object))
	}
}

func BenchmarkResolve(b *testing.B) {
	table := benchTable(b)
	obj := fn.Panic1(ParseObject(benchObject(b)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fn.Panic1(Resolve(obj, table))
	}
}

func BenchmarkPatch(b *testing.B) {
	table := benchTable(b)
	obj := fn.Panic1(ParseObject(benchObject(b)))
	bd := fn.Panic1(Resolve(obj, table))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fn.Panic1(Patch(obj, bd, 0x4ff0_0000))
	}
}

func BenchmarkLink(b *testing.B) {
	table := benchTable(b)
	alloc := NewFakeAllocator(0x5000_0000)
	object := benchObject(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := fn.Panic1(Link(table, alloc, object, "entry"))
		fn.Panic(m.Free())
	}
}
