package anonymize

import (
	"fmt"
	"strings"
)

// registers holds every x86/x86-64 register name in lowercase.
var registers = func() map[string]bool {
	m := make(map[string]bool)
	add := func(names ...string) {
		for _, n := range names {
			m[n] = true
		}
	}
	for _, r := range []string{"a", "b", "c", "d"} {
		add("r"+r+"x", "e"+r+"x", r+"x", r+"l", r+"h")
	}
	for _, r := range []string{"si", "di", "sp", "bp"} {
		add("r"+r, "e"+r, r, r+"l")
	}
	for i := 8; i <= 15; i++ {
		r := fmt.Sprintf("r%d", i)
		add(r, r+"d", r+"w", r+"b", r+"l")
	}
	for i := 0; i < 8; i++ {
		add(fmt.Sprintf("st%d", i), fmt.Sprintf("mm%d", i), fmt.Sprintf("mmx%d", i))
	}
	for i := 0; i < 32; i++ {
		add(fmt.Sprintf("xmm%d", i), fmt.Sprintf("ymm%d", i), fmt.Sprintf("zmm%d", i))
	}
	add("rip", "eip", "ip", "cs", "ds", "es", "fs", "gs", "ss")
	return m
}()

// IsRegister reports whether name is an x86 register.
func IsRegister(name string) bool {
	return registers[strings.ToLower(name)]
}
