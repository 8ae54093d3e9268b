package peimage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"gitlab.com/stephen-fox/hookkit/pattern"
)

type testSection struct {
	name        string
	virtualSize uint32
	rva         uint32
	raw         []byte
}

// buildPE32 returns a minimal PE32 file with the specified sections.
// Raw data is stored at 0x200 byte file alignment.
func buildPE32(t *testing.T, sections []testSection) []byte {
	t.Helper()

	const fileAlignment = 0x200

	buf := bytes.NewBuffer(nil)
	write := func(v interface{}) {
		err := binary.Write(buf, binary.LittleEndian, v)
		if err != nil {
			t.Fatal(err)
		}
	}

	dos := make([]byte, 0x40)
	copy(dos, "MZ")
	binary.LittleEndian.PutUint32(dos[0x3c:], 0x40)
	write(dos)

	write([]byte("PE\x00\x00"))

	write(struct {
		Machine              uint16
		NumberOfSections     uint16
		TimeDateStamp        uint32
		PointerToSymbolTable uint32
		NumberOfSymbols      uint32
		SizeOfOptionalHeader uint16
		Characteristics      uint16
	}{
		Machine:              0x14c,
		NumberOfSections:     uint16(len(sections)),
		SizeOfOptionalHeader: 224,
		Characteristics:      0x0102,
	})

	write(struct {
		Magic                   uint16
		MajorLinkerVersion      uint8
		MinorLinkerVersion      uint8
		SizeOfCode              uint32
		SizeOfInitializedData   uint32
		SizeOfUninitializedData uint32
		AddressOfEntryPoint     uint32
		BaseOfCode              uint32
		BaseOfData              uint32
		ImageBase               uint32
		SectionAlignment        uint32
		FileAlignment           uint32
		OSVersion               [2]uint16
		ImageVersion            [2]uint16
		SubsystemVersion        [2]uint16
		Win32VersionValue       uint32
		SizeOfImage             uint32
		SizeOfHeaders           uint32
		CheckSum                uint32
		Subsystem               uint16
		DllCharacteristics      uint16
		StackAndHeap            [4]uint32
		LoaderFlags             uint32
		NumberOfRvaAndSizes     uint32
		DataDirectories         [16][2]uint32
	}{
		Magic:               0x10b,
		ImageBase:           0x400000,
		SectionAlignment:    0x1000,
		FileAlignment:       fileAlignment,
		SizeOfHeaders:       fileAlignment,
		Subsystem:           3,
		NumberOfRvaAndSizes: 16,
	})

	pointerToRaw := uint32(fileAlignment)

	for _, s := range sections {
		var name [8]byte
		copy(name[:], s.name)

		write(struct {
			Name                 [8]byte
			VirtualSize          uint32
			VirtualAddress       uint32
			SizeOfRawData        uint32
			PointerToRawData     uint32
			PointerToRelocations uint32
			PointerToLinenumbers uint32
			NumberOfRelocations  uint16
			NumberOfLinenumbers  uint16
			Characteristics      uint32
		}{
			Name:             name,
			VirtualSize:      s.virtualSize,
			VirtualAddress:   s.rva,
			SizeOfRawData:    uint32(len(s.raw)),
			PointerToRawData: pointerToRaw,
			Characteristics:  0x60000020,
		})

		pointerToRaw += uint32(len(s.raw))
	}

	write(make([]byte, fileAlignment-buf.Len()))

	for _, s := range sections {
		write(s.raw)
	}

	return buf.Bytes()
}

func testImage(t *testing.T) []byte {
	t.Helper()

	text := make([]byte, 0x200)
	copy(text[0x10:], []byte{0x55, 0x8B, 0xEC, 0xA1, 0x04, 0x20, 0x40, 0x00})

	data := make([]byte, 0x200)
	copy(data[0x4:], []byte{0xef, 0xbe, 0xad, 0xde})
	data[0x1ff] = 0xff

	return buildPE32(t, []testSection{
		{name: ".text", virtualSize: 0x180, rva: 0x1000, raw: text},
		{name: ".data", virtualSize: 0x100, rva: 0x2000, raw: data},
	})
}

func TestParse(t *testing.T) {
	img, err := Parse("game.exe", testImage(t))
	if err != nil {
		t.Fatal(err)
	}

	if img.Module.Name != "game.exe" || img.Module.Base != 0 || img.Module.Size != 0x2100 {
		t.Fatalf("unexpected module: %+v", img.Module)
	}

	data, hasIt := img.Section(".data")
	if !hasIt {
		t.Fatal("expected a .data section")
	}

	if data.VirtualAddress != 0x2000 || data.Size != 0x100 {
		t.Fatalf("unexpected .data section: %+v", data)
	}

	section, hasIt := img.SectionAt(0x1010)
	if !hasIt || section.Name != ".text" {
		t.Fatalf("expected 0x1010 to be in .text - got %+v", section)
	}

	_, hasIt = img.SectionAt(0x1800)
	if hasIt {
		t.Fatal("expected 0x1800 to be unmapped")
	}

	p, err := img.ReadMemory(0x2004, 4)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(p, []byte{0xef, 0xbe, 0xad, 0xde}) {
		t.Fatalf("expected .data contents at 0x2004 - got 0x%x", p)
	}
}

func TestParse_Scan(t *testing.T) {
	img, err := Parse("game.exe", testImage(t))
	if err != nil {
		t.Fatal(err)
	}

	scanner, err := pattern.NewScanner(pattern.ScannerConfig{
		Accessor:    img,
		Module:      img.Module,
		PointerSize: 4,
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := scanner.Find(pattern.ParseOrExit("55 8B EC A1 ?? ?? ?? ??"))
	if err != nil {
		t.Fatal(err)
	}

	if !res.Found || res.Offset != 0x1010 {
		t.Fatalf("expected match at 0x1010 - got %+v", res)
	}
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("junk", []byte("this is not a pe file"))
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestParse_TooLarge(t *testing.T) {
	raw := make([]byte, 0x200)

	b := buildPE32(t, []testSection{
		{name: ".text", virtualSize: 0x200, rva: 0x1000, raw: raw},
		{name: ".huge", virtualSize: 0x10000, rva: 0x7fff0000, raw: raw},
	})

	_, err := Parse("huge.exe", b)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge - got %v", err)
	}
}
