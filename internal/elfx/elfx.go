// Package elfx provides helpers for opening ELF binaries, locating sections, enumerating function symbols and mapping virtual addresses to file offsets.
package elfx

import (
	"debug/elf"
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"
)

type Image struct {
	Path    string
	File    *elf.File
	All     []byte
	Loads   []Seg
	Text    Section
	Rodata  Section
	PLT     []Section
	Dynsyms []Sym
	Syms    []Sym
	f       *os.File
}

type Seg struct {
	Vaddr, Off, Filesz uint64
	Flags              elf.ProgFlag
}

type Section struct {
	Name          string
	VA, Off, Size uint64
}

// Contains reports whether va lies in the section.
func (s Section) Contains(va uint64) bool {
	return s.Size != 0 && va >= s.VA && va < s.VA+s.Size
}

type Sym struct {
	Name   string
	Addr   uint64
	Size   uint64
	IsFunc bool
	IsPLT  bool
}

func Open(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}

	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	all, err := syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	im := &Image{Path: path, File: f, All: all, f: of}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  uint64(p.Vaddr),
			Off:    uint64(p.Off),
			Filesz: uint64(p.Filesz),
			Flags:  p.Flags,
		})
	}

	for _, s := range f.Sections {
		switch s.Name {
		case ".text":
			im.Text = Section{s.Name, s.Addr, s.Offset, s.Size}
		case ".rodata":
			im.Rodata = Section{s.Name, s.Addr, s.Offset, s.Size}
		case ".plt", ".plt.sec", ".plt.got":
			im.PLT = append(im.PLT, Section{s.Name, s.Addr, s.Offset, s.Size})
		}
	}

	im.loadDynamicSymbols()

	// Static symbols cover local functions that .dynsym omits
	im.loadStaticSymbols()

	// Fallbacks if stripped.
	if im.Text.Size == 0 {
		for _, l := range im.Loads {
			if l.Flags&elf.PF_X != 0 && l.Filesz > 0 {
				im.Text = Section{"LOAD(exec)", l.Vaddr, l.Off, l.Filesz}
				break
			}
		}
	}
	return im, nil
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.All != nil {
		err1 = syscall.Munmap(im.All)
		im.All = nil
	}
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		err3 := im.File.Close()
		if err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// Mode returns the x86 decoding mode (32 or 64) of the image, or 0 when the
// machine is not x86.
func (im *Image) Mode() int {
	if im.File == nil {
		return 0
	}
	switch im.File.Machine {
	case elf.EM_X86_64:
		return 64
	case elf.EM_386:
		return 32
	}
	return 0
}

// Kind is "library" for shared objects and "executable" otherwise.
func (im *Image) Kind() string {
	if im.File != nil && im.File.Type == elf.ET_DYN {
		return "library"
	}
	return "executable"
}

// Machine returns the ELF machine name.
func (im *Image) Machine() string {
	if im.File == nil {
		return ""
	}
	return im.File.Machine.String()
}

// VA2Off translates a virtual address into a file offset
// using PT_LOAD segments. It returns false if VA is unmapped.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return l.Off + (va - l.Vaddr), true
		}
	}
	return 0, false
}

// SliceVA returns a subslice of the mapped file corresponding to the virtual address range [va, va+size).
// It returns (nil, false) if the VA is unmapped or the range is out of bounds.
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, false
	}
	if size == 0 {
		return []byte{}, true
	}
	end := off + size
	if end > uint64(len(im.All)) {
		return nil, false
	}
	return im.All[off:end], true
}

// IsPLTEntry returns true if the given virtual address lies within
// one of the PLT sections.
func (im *Image) IsPLTEntry(va uint64) bool {
	for _, s := range im.PLT {
		if s.Contains(va) {
			return true
		}
	}
	return false
}

// isExecutable reports whether va lies in an executable PT_LOAD segment.
func (im *Image) isExecutable(va uint64) bool {
	for _, seg := range im.Loads {
		if seg.Flags&elf.PF_X != 0 && va >= seg.Vaddr && va < seg.Vaddr+seg.Filesz {
			return true
		}
	}
	return false
}

// loadDynamicSymbols loads symbols from .dynsym.
func (im *Image) loadDynamicSymbols() {
	if im.File == nil {
		return
	}

	dynsyms, err := im.File.DynamicSymbols()
	if err != nil {
		return
	}
	for _, sym := range dynsyms {
		if sym.Value == 0 {
			continue
		}
		im.Dynsyms = append(im.Dynsyms, newSym(sym))
	}
}

// loadStaticSymbols loads symbols from .symtab. Stripped binaries have none.
func (im *Image) loadStaticSymbols() {
	if im.File == nil {
		return
	}

	syms, err := im.File.Symbols()
	if err != nil {
		return
	}
	for _, sym := range syms {
		// Skip undefined symbols
		if sym.Value == 0 {
			continue
		}
		im.Syms = append(im.Syms, newSym(sym))
	}
}

func newSym(sym elf.Symbol) Sym {
	return Sym{
		Name:   sym.Name,
		Addr:   sym.Value,
		Size:   sym.Size,
		IsFunc: elf.ST_TYPE(sym.Info) == elf.STT_FUNC,
		IsPLT:  strings.HasSuffix(sym.Name, "@plt"),
	}
}

// Functions returns the defined function symbols of both symbol tables,
// deduplicated by address and sorted. Symbols without a size extend to the
// next function or the end of the executable section. A stripped image
// yields a single pseudo function spanning .text.
func (im *Image) Functions() []Sym {
	byAddr := make(map[uint64]Sym)
	for _, list := range [][]Sym{im.Syms, im.Dynsyms} {
		for _, s := range list {
			if !s.IsFunc || s.IsPLT || im.IsPLTEntry(s.Addr) || !im.isExecutable(s.Addr) {
				continue
			}
			if prev, ok := byAddr[s.Addr]; ok && prev.Size >= s.Size {
				continue
			}
			byAddr[s.Addr] = s
		}
	}

	fns := make([]Sym, 0, len(byAddr))
	for _, s := range byAddr {
		fns = append(fns, s)
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Addr < fns[j].Addr })

	for i := range fns {
		if fns[i].Size != 0 {
			continue
		}
		end := im.Text.VA + im.Text.Size
		if i+1 < len(fns) {
			end = fns[i+1].Addr
		}
		if end > fns[i].Addr {
			fns[i].Size = end - fns[i].Addr
		}
	}

	if len(fns) == 0 && im.Text.Size != 0 {
		fns = append(fns, Sym{
			Name:   fmt.Sprintf("sub_%x", im.Text.VA),
			Addr:   im.Text.VA,
			Size:   im.Text.Size,
			IsFunc: true,
		})
	}
	return fns
}

// FindFunctionByName searches for a function by name in the symbol tables.
func (im *Image) FindFunctionByName(name string) (uint64, bool) {
	for _, list := range [][]Sym{im.Dynsyms, im.Syms} {
		for _, sym := range list {
			if sym.Name == name && !sym.IsPLT && sym.Addr != 0 {
				return sym.Addr, true
			}
		}
	}
	return 0, false
}
