package processor_test

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/LumeraProtocol/rq-library/pkg/processor"
)

func Example() {
	dir, err := os.MkdirTemp("", "rq-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	original := bytes.Repeat([]byte("erasure coded "), 100)
	inputPath := filepath.Join(dir, "input.bin")
	if err := os.WriteFile(inputPath, original, 0o644); err != nil {
		log.Fatal(err)
	}

	p, err := processor.New(processor.DefaultConfig())
	if err != nil {
		log.Fatal(err)
	}

	// Encode into content-addressed symbol files plus a layout record.
	symbolsDir := filepath.Join(dir, "symbols")
	result, err := p.EncodeFile(inputPath, symbolsDir, 0)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("blocks: %d\n", len(result.Blocks))

	// Reconstruct the file from the symbols and the layout.
	outputPath := filepath.Join(dir, "restored.bin")
	if err := p.DecodeSymbols(symbolsDir, outputPath, result.LayoutFilePath); err != nil {
		log.Fatal(err)
	}

	restored, err := os.ReadFile(outputPath)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("round trip intact: %v\n", bytes.Equal(original, restored))

	// Output:
	// blocks: 1
	// round trip intact: true
}
