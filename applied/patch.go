package applied

import (
	"gitlab.com/stephen-fox/hookkit/memory"
)

// PatchConfig configures a Patch.
type PatchConfig struct {
	Accessor memory.Accessor

	// Name identifies the Patch in a Manager.
	Name string

	Address memory.Address

	// Bytes are written to Address when the Patch is enabled.
	Bytes []byte

	// IgnoreRules makes the Patch immune to DisableDueToRules.
	IgnoreRules bool
}

// NewPatch reads len(config.Bytes) bytes at config.Address so that they
// can be restored later. It does not modify memory.
func NewPatch(config PatchConfig) (*Patch, error) {
	s, err := newSite(siteConfig{
		accessor:    config.Accessor,
		name:        config.Name,
		address:     config.Address,
		replacement: config.Bytes,
		ignoreRules: config.IgnoreRules,
	})
	if err != nil {
		return nil, err
	}

	return &Patch{
		site: s,
	}, nil
}

// Patch overwrites bytes at an address.
type Patch struct {
	*site
}
