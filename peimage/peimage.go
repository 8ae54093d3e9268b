// Package peimage maps a PE file into memory the way the Windows loader
// lays out its sections, so that it can be scanned without running it.
package peimage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RIscRIpt/pecoff"
	"github.com/RIscRIpt/pecoff/binutil"
	"gitlab.com/stephen-fox/hookkit/memory"
	"gitlab.com/stephen-fox/hookkit/pattern"
)

var (
	// ErrNoSections is returned when a PE file has no sections to map.
	ErrNoSections = errors.New("pe file has no sections")

	// ErrImageTooLarge is returned when a PE file's sections extend
	// past MaxImageSize.
	ErrImageTooLarge = errors.New("pe image is too large")
)

// MaxImageSize is the largest mapped image, in bytes, that Parse
// allocates memory for.
const MaxImageSize = 512 << 20

// Image is a PE file mapped at its section RVAs.
type Image struct {
	// Buffer holds the mapped image. Address 0 is the image base,
	// which makes every address in it a relative virtual address.
	*memory.Buffer

	Module   pattern.Module
	Sections []Section
}

// Section describes where a section was mapped.
type Section struct {
	Name           string
	VirtualAddress memory.Address
	Size           int
}

// LoadOrExit calls Load. It calls DefaultExitFn if an error occurs.
func LoadOrExit(filePath string) *Image {
	img, err := Load(filePath)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to load pe file %q - %w", filePath, err))
	}
	return img
}

// Load reads and maps the PE file at filePath.
func Load(filePath string) (*Image, error) {
	b, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return Parse(filepath.Base(filePath), b)
}

// Parse maps the PE file b. The returned Image's Module is named name.
func Parse(name string, b []byte) (img *Image, err error) {
	// The parser panics on some malformed files.
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("failed to parse pe file - %v", r)
		}
	}()

	file := pecoff.Explore(binutil.WrapByteSlice(b))

	err = file.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse pe file - %w", err)
	}

	file.Seal()

	if file.Sections == nil || file.Sections.Len() == 0 {
		return nil, ErrNoSections
	}

	var sections []Section
	var imageSize int

	for _, section := range file.Sections.Array() {
		size := uint64(section.VirtualSize)
		if size == 0 {
			size = uint64(section.SizeOfRawData)
		}

		end := uint64(section.VirtualAddress) + size
		if end > MaxImageSize {
			return nil, fmt.Errorf("%w: section %q ends at 0x%x (limit 0x%x)",
				ErrImageTooLarge, section.NameString(), end, MaxImageSize)
		}

		if int(end) > imageSize {
			imageSize = int(end)
		}

		sections = append(sections, Section{
			Name:           section.NameString(),
			VirtualAddress: memory.Address(section.VirtualAddress),
			Size:           int(size),
		})
	}

	if imageSize == 0 {
		return nil, ErrNoSections
	}

	mapped := make([]byte, imageSize)

	for i, section := range file.Sections.Array() {
		raw := section.RawData()
		if len(raw) > sections[i].Size {
			raw = raw[:sections[i].Size]
		}

		copy(mapped[section.VirtualAddress:], raw)
	}

	return &Image{
		Buffer: memory.NewBuffer(0, mapped),
		Module: pattern.Module{
			Name: name,
			Base: 0,
			Size: imageSize,
		},
		Sections: sections,
	}, nil
}

// Section returns the section with the specified name.
func (o *Image) Section(name string) (Section, bool) {
	for _, section := range o.Sections {
		if section.Name == name {
			return section, true
		}
	}

	return Section{}, false
}

// SectionAt returns the section containing the relative virtual
// address rva.
func (o *Image) SectionAt(rva memory.Address) (Section, bool) {
	for _, section := range o.Sections {
		if rva >= section.VirtualAddress && rva < section.VirtualAddress.Add(int64(section.Size)) {
			return section, true
		}
	}

	return Section{}, false
}
