package main

import (
	"fmt"
	"log"
	"os"

	. "github.com/p4jit/jitlink"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()
	app.Usage = "jit module linker"
	app.Name = "Linker"
	app.Description = "jit module linker which resolves and relocates compiled objects against a firmware image"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}},
	}
	app.Args = true
	app.Commands = []*cli.Command{
		{
			Name:   "link",
			Action: link,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "firmware", Aliases: []string{"f"}, Usage: "base firmware elf, required unless --cache is given"},
				&cli.StringFlag{Name: "cache", Aliases: []string{"c"}, Usage: "serialized firmware table from the cache command"},
				&cli.StringFlag{Name: "entry", Aliases: []string{"e"}, Usage: "entry symbol name, required"},
				&cli.Uint64Flag{Name: "base", Aliases: []string{"b"}, Usage: "target load address", Value: 0x4ff0_0000},
				&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write the patched image here"},
			},
			Args:  true,
			Usage: "link one object file against the firmware image for the target base address",
		},
		{
			Name:   "inspect",
			Action: inspect,
			Usage:  "display defined symbols and external references of object files",
			Args:   true,
		},
		{
			Name:   "exports",
			Action: exports,
			Usage:  "display exported symbols of firmware images",
			Args:   true,
		},
		{
			Name:   "cache",
			Action: cache,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "cache file, default <firmware>.symcache"},
			},
			Args:  true,
			Usage: "parse a firmware image once and serialize its symbol table",
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("failure %s", err)
	}
}

func table(ctx *cli.Context) (t *FirmwareTable, err error) {
	if c := ctx.String("cache"); c != "" {
		var f *os.File
		if f, err = os.Open(c); err != nil {
			return
		}
		defer f.Close()
		return LoadFirmwareSerialized(f)
	}
	fw := ctx.String("firmware")
	if fw == "" {
		return nil, fmt.Errorf("required argument -f|--firmware or -c|--cache missing")
	}
	var image []byte
	if image, err = os.ReadFile(fw); err != nil {
		return
	}
	return LoadFirmware(image)
}

func link(ctx *cli.Context) (err error) {
	d := ctx.Bool("debug")
	entry := ctx.String("entry")
	if entry == "" {
		return fmt.Errorf("required argument -e|--entry missing")
	}
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("exactly one object file required")
	}
	t, err := table(ctx)
	if err != nil {
		return
	}
	object, err := os.ReadFile(ctx.Args().First())
	if err != nil {
		return
	}
	l := NewLinker(t, NewFakeAllocator(ctx.Uint64("base")), d)
	if err = l.Initialize(object); err != nil {
		return
	}
	if missing := l.MissingSymbols(); len(missing) > 0 {
		log.Printf("missing symbols: %v", missing)
	}
	if err = l.Resolve(); err != nil {
		return
	}
	for _, diag := range l.Bindings().Diagnostics {
		log.Printf("warning: %s", diag)
	}
	img, err := l.LinkAt(entry, ctx.Uint64("base"))
	if err != nil {
		return
	}
	e, _ := img.EntryAddress(entry)
	log.Printf("linked %s: entry %#x, %d bytes at %#x", entry, e, len(img.Bytes), img.Base)
	for name, addr := range img.Resolved() {
		log.Printf("  %-32s %#x", name, addr)
	}
	if d {
		log.Printf("\n%s", Dump(img.Resolved()))
	}
	if out := ctx.String("out"); out != "" {
		err = os.WriteFile(out, img.Bytes, 0o644)
	}
	return
}

func inspect(ctx *cli.Context) (err error) {
	for _, s := range ctx.Args().Slice() {
		var object []byte
		if object, err = os.ReadFile(s); err != nil {
			return
		}
		var defined, refs []string
		if defined, err = Inspect(object); err != nil {
			return
		}
		if refs, err = References(object); err != nil {
			return
		}
		log.Printf("%s defines %v", s, defined)
		log.Printf("%s references %v", s, refs)
	}
	return
}

func exports(ctx *cli.Context) (err error) {
	for _, s := range ctx.Args().Slice() {
		var image []byte
		if image, err = os.ReadFile(s); err != nil {
			return
		}
		var syms []Symbol
		if syms, err = Exports(image); err != nil {
			return
		}
		for _, sym := range syms {
			log.Printf("%-32s %#010x %6d %s", sym.Name, sym.Address, sym.Size, sym.Kind)
		}
	}
	return
}

func cache(ctx *cli.Context) (err error) {
	for _, s := range ctx.Args().Slice() {
		var image []byte
		if image, err = os.ReadFile(s); err != nil {
			return
		}
		var t *FirmwareTable
		if t, err = LoadFirmware(image); err != nil {
			return
		}
		out := ctx.String("out")
		if out == "" {
			out = s + ".symcache"
		}
		var f *os.File
		if f, err = os.Create(out); err != nil {
			return
		}
		if err = t.Serialize(f); err != nil {
			_ = f.Close()
			return
		}
		if err = f.Close(); err != nil {
			return
		}
		log.Printf("cached %d symbols from %s to %s", t.Len(), s, out)
	}
	return
}
