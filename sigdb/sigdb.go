// Package sigdb loads signature databases: TOML files that name the
// byte signatures to find in a module and the patches to apply at
// the addresses they resolve to.
//
// For example:
//
//	module = "game.exe"
//
//	[[signature]]
//	name = "damage"
//	pattern = "E8 ?? ?? ?? ?? 83 C4"
//
//	[[signature]]
//	name = "player"
//	pattern = "A1 ?? ?? ?? ?? 85 C0"
//	type = "data"
//	offset = 1
//
//	[[patch]]
//	name = "no-damage"
//	signature = "damage"
//	bytes = "90 90 90 90 90"
package sigdb

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gitlab.com/stephen-fox/hookkit/applied"
	"gitlab.com/stephen-fox/hookkit/memory"
	"gitlab.com/stephen-fox/hookkit/pattern"
	"go.uber.org/multierr"
)

var (
	// ErrInvalidDB is returned when a database fails validation.
	ErrInvalidDB = errors.New("invalid signature database")

	// ErrUnresolved is returned by Apply for patches whose
	// signature was not found.
	ErrUnresolved = errors.New("signature was not found")
)

// DB is a signature database.
type DB struct {
	// Module is the file name of the module that the
	// signatures are found in.
	Module string `toml:"module"`

	// ScanOffset is the offset from the start of the module
	// at which scanning begins.
	ScanOffset int `toml:"scan_offset"`

	Signatures []Signature `toml:"signature"`

	Patches []Patch `toml:"patch"`
}

// Signature is a named pattern.
type Signature struct {
	Name string `toml:"name"`

	// Pattern is written like "E8 ?? ?? ?? ?? 83 C4".
	Pattern string `toml:"pattern"`

	// Type is "function" or "data". It defaults to "function".
	Type string `toml:"type"`

	// Offset is the pattern.Pattern Offset of data signatures.
	Offset int `toml:"offset"`

	// Algorithm is "bmh" or "naive". It defaults to "bmh".
	Algorithm string `toml:"algorithm"`

	parsed pattern.Pattern
}

// Parsed returns the parsed signature.
func (o Signature) Parsed() pattern.Pattern {
	return o.parsed
}

// Patch is a named patch applied relative to a signature's address.
type Patch struct {
	Name string `toml:"name"`

	// Signature is the name of the Signature that the patch
	// is applied to.
	Signature string `toml:"signature"`

	// Offset is added to the signature's address.
	Offset int64 `toml:"offset"`

	// Bytes is written like "90 90 90".
	Bytes string `toml:"bytes"`

	IgnoreRules bool `toml:"ignore_rules"`

	parsed []byte
}

// Parsed returns the patch's bytes.
func (o Patch) Parsed() []byte {
	return append([]byte(nil), o.parsed...)
}

// LoadOrExit calls Load. It calls DefaultExitFn if an error occurs.
func LoadOrExit(filePath string) *DB {
	db, err := Load(filePath)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to load signature database %q - %w", filePath, err))
	}
	return db
}

// Load reads the database at filePath.
func Load(filePath string) (*DB, error) {
	var db DB

	md, err := toml.DecodeFile(filePath, &db)
	if err != nil {
		return nil, fmt.Errorf("failed to decode toml - %w", err)
	}

	err = db.init(md)
	if err != nil {
		return nil, err
	}

	return &db, nil
}

// Decode reads a database from r.
func Decode(r io.Reader) (*DB, error) {
	var db DB

	md, err := toml.NewDecoder(r).Decode(&db)
	if err != nil {
		return nil, fmt.Errorf("failed to decode toml - %w", err)
	}

	err = db.init(md)
	if err != nil {
		return nil, err
	}

	return &db, nil
}

func (o *DB) init(md toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}

		return fmt.Errorf("%w: unknown keys: %s", ErrInvalidDB, strings.Join(keys, ", "))
	}

	if o.ScanOffset < 0 {
		return fmt.Errorf("%w: scan offset cannot be negative", ErrInvalidDB)
	}

	sigNames := make(map[string]struct{}, len(o.Signatures))

	for i := range o.Signatures {
		sig := &o.Signatures[i]

		err := sig.init()
		if err != nil {
			return fmt.Errorf("%w: signature %d (%q) - %s", ErrInvalidDB, i, sig.Name, err)
		}

		_, hasIt := sigNames[sig.Name]
		if hasIt {
			return fmt.Errorf("%w: duplicate signature name: %q", ErrInvalidDB, sig.Name)
		}

		sigNames[sig.Name] = struct{}{}
	}

	patchNames := make(map[string]struct{}, len(o.Patches))

	for i := range o.Patches {
		patch := &o.Patches[i]

		err := patch.init()
		if err != nil {
			return fmt.Errorf("%w: patch %d (%q) - %s", ErrInvalidDB, i, patch.Name, err)
		}

		_, hasIt := sigNames[patch.Signature]
		if !hasIt {
			return fmt.Errorf("%w: patch %q refers to unknown signature: %q",
				ErrInvalidDB, patch.Name, patch.Signature)
		}

		_, hasIt = patchNames[patch.Name]
		if hasIt {
			return fmt.Errorf("%w: duplicate patch name: %q", ErrInvalidDB, patch.Name)
		}

		patchNames[patch.Name] = struct{}{}
	}

	return nil
}

func (o *Signature) init() error {
	if o.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if o.Type == "" {
		o.Type = pattern.Function.String()
	}

	if o.Algorithm == "" {
		o.Algorithm = pattern.BoyerMooreHorspool.String()
	}

	p, err := pattern.Parse(o.Pattern)
	if err != nil {
		return err
	}

	p.Name = o.Name
	p.Offset = o.Offset

	p.Type, err = pattern.ParseType(o.Type)
	if err != nil {
		return err
	}

	p.Algorithm, err = pattern.ParseAlgorithm(o.Algorithm)
	if err != nil {
		return err
	}

	o.parsed = p

	return nil
}

func (o *Patch) init() error {
	if o.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	b, err := hex.DecodeString(strings.Join(strings.Fields(o.Bytes), ""))
	if err != nil {
		return fmt.Errorf("failed to decode bytes - %w", err)
	}

	if len(b) == 0 {
		return fmt.Errorf("bytes cannot be empty")
	}

	o.parsed = b

	return nil
}

// Signature returns the signature with the specified name.
func (o *DB) Signature(name string) (Signature, bool) {
	for _, sig := range o.Signatures {
		if sig.Name == name {
			return sig, true
		}
	}

	return Signature{}, false
}

// Resolved maps signature names to their scan results.
type Resolved map[string]pattern.Result

// Names returns the resolved signature names in sorted order.
func (o Resolved) Names() []string {
	names := make([]string, 0, len(o))
	for name := range o {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// NewScanner creates a scanner for the database's module. The module
// is usually found with process.Process.Module.
func (o *DB) NewScanner(accessor memory.Accessor, module pattern.Module, pointerSize int) (*pattern.Scanner, error) {
	return pattern.NewScanner(pattern.ScannerConfig{
		Accessor:    accessor,
		Module:      module,
		Offset:      o.ScanOffset,
		PointerSize: pointerSize,
	})
}

// ResolveOrExit calls Resolve. It calls DefaultExitFn if an error occurs.
func (o *DB) ResolveOrExit(scanner *pattern.Scanner) Resolved {
	r, err := o.Resolve(scanner)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to resolve signatures - %w", err))
	}
	return r
}

// Resolve finds every signature concurrently. Signatures that are
// not found are included in the result with Found set to false.
func (o *DB) Resolve(scanner *pattern.Scanner) (Resolved, error) {
	patterns := make([]pattern.Pattern, len(o.Signatures))
	for i, sig := range o.Signatures {
		patterns[i] = sig.parsed
	}

	results, err := scanner.FindAll(patterns)
	if err != nil {
		return nil, err
	}

	resolved := make(Resolved, len(results))
	for i, res := range results {
		resolved[o.Signatures[i].Name] = res
	}

	return resolved, nil
}

// Apply creates a disabled patch in m for every patch in the database,
// at its signature's resolved address plus the patch's offset. A patch
// that cannot be created does not stop the others; all failures are
// returned together.
func (o *DB) Apply(resolved Resolved, m *applied.PatchManager) ([]*applied.Patch, error) {
	var patches []*applied.Patch
	var result error

	for _, patch := range o.Patches {
		res := resolved[patch.Signature]
		if !res.Found {
			result = multierr.Append(result, fmt.Errorf("patch %q - %w: %q",
				patch.Name, ErrUnresolved, patch.Signature))
			continue
		}

		p, err := m.Create(patch.Name, res.ReadAddress.Add(patch.Offset), patch.parsed, patch.IgnoreRules)
		if err != nil {
			result = multierr.Append(result, fmt.Errorf("failed to create patch %q - %w",
				patch.Name, err))
			if p == nil {
				continue
			}
		}

		patches = append(patches, p)
	}

	return patches, result
}
