package main

import (
	"bytes"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"gitlab.com/stephen-fox/hookkit/applied"
	"gitlab.com/stephen-fox/hookkit/asmkit"
	"gitlab.com/stephen-fox/hookkit/memory"
)

const (
	archArg         = "a"
	syntaxArg       = "s"
	outputFormatArg = "o"
	prologueArg     = "p"
	helpArg         = "h"

	prettyFormat = "pretty"
	hexFormat    = "hex"
	goFormat     = "go"

	appName = "trampoline"
	usage   = appName + `
DESCRIPTION
  Prints the trampoline that a detour writes over the start of a function
  to redirect it to a hook function.

  If the first bytes of the target function are specified, the trampoline
  is checked against them: overwriting only part of an instruction means
  that the original function cannot be safely resumed from the end of
  the trampoline.

USAGE
  ` + appName + ` [options] HOOK-ADDRESS

EXAMPLES
  Print a 32-bit trampoline:
    $ ` + appName + ` -` + archArg + ` 32 0xdeadbeef
    push 0xdeadbeef
    ret

  Print it as a Go []byte:
    $ ` + appName + ` -` + archArg + ` 32 -` + outputFormatArg + ` ` + goFormat + ` 0xdeadbeef
    []byte {
    	0x68, 0xef, 0xbe, 0xad, 0xde, // push 0xdeadbeef
    	0xc3, // ret
    }

  Check a trampoline against a function's prologue:
    $ ` + appName + ` -` + archArg + ` 32 -` + prologueArg + ` '55 8b ec 83 ec 08 56' 0xdeadbeef

OPTIONS
`
)

func main() {
	log.SetFlags(0)

	err := mainWithError()
	if err != nil {
		log.Fatalln("fatal:", err)
	}
}

func mainWithError() error {
	help := flag.Bool(
		helpArg,
		false,
		"Display this information")

	defaultArch := applied.HostArch
	if defaultArch == 0 {
		defaultArch = applied.Arch64
	}

	arch := flag.Int(
		archArg,
		int(defaultArch),
		"The trampoline's architecture in bits (32 or 64)")

	syntax := flag.String(
		syntaxArg,
		string(asmkit.IntelSyntax),
		"The assembly syntax ('intel', 'att', or 'go')")

	outputFormat := flag.String(
		outputFormatArg,
		prettyFormat,
		"The output format ('"+prettyFormat+"', '"+hexFormat+"', or '"+goFormat+"')")

	prologue := flag.String(
		prologueArg,
		"",
		"Optionally check the trampoline against the first bytes of the\n"+
			"target function, encoded as hex")

	flag.Parse()

	if *help {
		os.Stderr.WriteString(usage)
		flag.PrintDefaults()
		os.Exit(1)
	}

	if flag.NArg() != 1 {
		return fmt.Errorf("please specify a hook address")
	}

	ptrMaker := memory.PointerMakerForX86_64()

	hook, err := ptrMaker.Parse(flag.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to parse hook address - %w", err)
	}

	trampoline, err := applied.Trampoline(applied.Arch(*arch), hook.Address())
	if err != nil {
		return err
	}

	decoder, err := asmkit.NewDecoder(*arch, asmkit.Syntax(*syntax))
	if err != nil {
		return fmt.Errorf("failed to create decoder - %w", err)
	}

	output := bytes.NewBuffer(nil)
	var writer instWriter

	switch *outputFormat {
	case prettyFormat:
		writer = &disassWriter{w: output}
	case hexFormat:
		writer = &hexWriter{w: output}
	case goFormat:
		writer = &goByteSliceWriter{w: output}
	default:
		return fmt.Errorf("unsupported output format: %q", *outputFormat)
	}

	err = decoder.Walk(trampoline, writer.Write)
	if err != nil {
		return fmt.Errorf("failed to decode trampoline - %w", err)
	}

	err = writer.Flush()
	if err != nil {
		return fmt.Errorf("failed to write remaining data to output - %w", err)
	}

	_, err = io.Copy(os.Stdout, output)
	if err != nil {
		return err
	}

	if *prologue != "" {
		return checkPrologue(*prologue, *arch, len(trampoline))
	}

	return nil
}

func checkPrologue(prologueHex string, bits int, trampolineLen int) error {
	code, err := hex.DecodeString(strings.Join(strings.Fields(prologueHex), ""))
	if err != nil {
		return fmt.Errorf("failed to decode prologue - %w", err)
	}

	boundary, err := asmkit.InstructionBoundary(code, bits, trampolineLen)
	if err != nil {
		return fmt.Errorf("failed to check prologue - %w", err)
	}

	if boundary != trampolineLen {
		return fmt.Errorf("the %d byte trampoline splits an instruction - the prologue's first %d bytes hold whole instructions",
			trampolineLen, boundary)
	}

	log.Printf("the %d byte trampoline overwrites whole instructions", trampolineLen)

	return nil
}

type instWriter interface {
	Write(asmkit.Inst) error
	Flush() error
}

var _ instWriter = (*disassWriter)(nil)

type disassWriter struct {
	w io.Writer
}

func (o *disassWriter) Write(inst asmkit.Inst) error {
	_, err := io.WriteString(o.w, inst.Assembly+"\n")
	return err
}

func (o *disassWriter) Flush() error {
	return nil
}

var _ instWriter = (*hexWriter)(nil)

type hexWriter struct {
	w io.Writer
}

func (o *hexWriter) Write(inst asmkit.Inst) error {
	_, err := io.WriteString(o.w, hex.EncodeToString(inst.Bin))
	return err
}

func (o *hexWriter) Flush() error {
	_, err := o.w.Write([]byte{'\n'})
	return err
}

var _ instWriter = (*goByteSliceWriter)(nil)

type goByteSliceWriter struct {
	isInit bool
	w      io.Writer
}

func (o *goByteSliceWriter) Write(inst asmkit.Inst) error {
	if !o.isInit {
		o.isInit = true

		_, err := o.w.Write([]byte("[]byte {\n"))
		if err != nil {
			return err
		}
	}

	_, err := o.w.Write([]byte{'\t'})
	if err != nil {
		return err
	}

	for _, b := range inst.Bin {
		_, err = fmt.Fprintf(o.w, "0x%02x, ", b)
		if err != nil {
			return err
		}
	}

	_, err = io.WriteString(o.w, "// "+inst.Assembly+"\n")
	return err
}

func (o *goByteSliceWriter) Flush() error {
	_, err := o.w.Write([]byte{'}', '\n'})
	return err
}
