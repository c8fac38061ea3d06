/*
Package jitlink is a dynamic symbol resolution and relocation engine for
freshly compiled RV32 code executed against a running firmware image.

# Underwater

 1. A firmware ELF is parsed once into a read-only FirmwareTable which maps
    exported names to addresses. The table is shared between any number of
    concurrent link operations without locking.
 2. A relocatable object (ET_REL, EM_RISCV, ELF32) is parsed into sections,
    locally defined symbols and relocation records. References the object
    does not define itself must be satisfied by the firmware table.
 3. Resolution is two-level: a local definition always wins over a firmware
    export of the same name, matching ordinary static-then-dynamic linker
    order.
 4. Patching rewrites instruction encodings on a private copy of the image,
    so a failed link never leaves a half-patched module behind. A value that
    does not fit its immediate field is a hard RelocationRangeError, never a
    silent truncation.
 5. Loaded code lives in an executable Mapping memory section ( same as how
    other JIT solutions work ). The Allocator capability hides mmap and the
    instruction-cache synchronization step, so the engine can be exercised
    host-side with an in-memory region.

# Use Steps

 1. LoadFirmware once per base image, or UseGlobalFirmware to cache it.
 2. NewLinker with the table, Initialize with the object bytes.
 3. [Linker.Link] with the nominated entry symbol, or [Linker.LinkAt] to
    produce a patched image for a remote base address.
 4. Call [LinkedModule.Free] to release the executable region.

# Linker tool

The linker cli under linker/ drives the engine from the command line: it can
dump firmware exports, inspect object symbols, cache a parsed firmware table
and link an object into a loadable image.

# Samples

See the package tests and pool.
*/
package jitlink
