package pattern_test

import (
	"fmt"

	"gitlab.com/stephen-fox/hookkit/memory"
	"gitlab.com/stephen-fox/hookkit/pattern"
)

func ExampleScanner_Find() {
	module := memory.NewBuffer(0x400000, []byte{
		0x90,                         // nop
		0xE8, 0x12, 0x34, 0x56, 0x78, // call rel32
		0x83, 0xC4, 0x04,             // add esp, 4
	})

	scanner := pattern.NewScannerOrExit(pattern.ScannerConfig{
		Accessor: module,
		Module: pattern.Module{
			Name: "example.exe",
			Base: module.Base(),
			Size: module.Size(),
		},
	})

	res := scanner.FindOrExit(pattern.ParseOrExit("E8 ?? ?? ?? ?? 83 C4"))

	fmt.Println(res.Found, res.BaseAddress, res.Offset)

	// Output: true 0x400001 1
}
