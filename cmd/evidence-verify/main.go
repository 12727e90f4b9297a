// evidence-verify re-checks the SHA-256 of exported evidence/FX-artifact
// blobs against their recorded checksums, adapted from the teacher's
// cmd/proof-verify hash-chain verifier: same "read CSV manifest, recompute
// hash, compare" shape, applied to this engine's content-addressed bytes
// instead of an append-only event log.
package main

import (
	"bufio"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

func sha256HexOfFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func main() {
	var inPath = flag.String("in", "", "CSV with columns: key,sha256_hex,path")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}

	f, err := os.Open(*inPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(2)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		fmt.Fprintln(os.Stderr, "read header:", err)
		os.Exit(2)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, need := range []string{"key", "sha256_hex", "path"} {
		if _, ok := col[need]; !ok {
			fmt.Fprintln(os.Stderr, "missing column:", need)
			os.Exit(2)
		}
	}

	var (
		lineNo   = 1
		rows     int
		mismatch int
	)

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		lineNo++
		if err != nil {
			fmt.Fprintln(os.Stderr, "csv read:", err)
			os.Exit(2)
		}

		key := rec[col["key"]]
		want := strings.ToLower(strings.TrimSpace(rec[col["sha256_hex"]]))
		path := rec[col["path"]]

		if _, err := hex.DecodeString(want); err != nil {
			fmt.Fprintf(os.Stderr, "line %d: invalid sha256_hex for %s: %v\n", lineNo, key, err)
			os.Exit(1)
		}

		got, err := sha256HexOfFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "line %d: read %s: %v\n", lineNo, path, err)
			os.Exit(1)
		}
		rows++
		if got != want {
			fmt.Fprintf(os.Stderr, "MISMATCH key=%s path=%s\nexpected=%s\ngot=%s\n", key, path, want, got)
			mismatch++
		}
	}

	if rows == 0 {
		fmt.Fprintln(os.Stderr, "FAIL: empty manifest")
		os.Exit(1)
	}
	if mismatch > 0 {
		fmt.Fprintf(os.Stderr, "FAIL: %d/%d checksum mismatches\n", mismatch, rows)
		os.Exit(1)
	}

	fmt.Printf("OK: %d evidence blobs verified\n", rows)
}
