package registry

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/sha3"
)

// Packet is the canonical, content-addressed form of a submission. H is
// the hex-encoded SHA3-256 hash that identifies it and names its
// directory under the registry root.
type Packet struct {
	H string
}

func (p Packet) ID() string { return p.H }

// maxProgramSize and maxCaseSize are the §3 boundary constraints.
const (
	maxProgramSize = 256 * 1024
	maxCaseSize    = 1024
)

// hashSubmission computes the packet hash over main.c followed by the
// input/ and crash/ cases in directory-listing order, per §3:
//
//	"program" || main.c bytes
//	for i in input:  "input" || u64le(i) || bytes
//	for i in crash:  "crash" || u64le(i) || bytes
//
// The index encoding is frozen as 8-byte little-endian, not host/native
// byte order, so hashes are stable across platforms (§9 Open Question).
func hashSubmission(mainC string, inputCases, crashCases []string) (string, error) {
	h := sha3.New256()
	if err := hashFileWithLabel(h, "program", mainC); err != nil {
		return "", err
	}
	if err := hashIndexedCases(h, "input", inputCases); err != nil {
		return "", err
	}
	if err := hashIndexedCases(h, "crash", crashCases); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashIndexedCases(h io.Writer, label string, cases []string) error {
	var idx [8]byte
	for i, path := range cases {
		if _, err := io.WriteString(h, label); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(idx[:], uint64(i))
		if _, err := h.Write(idx[:]); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func hashFileWithLabel(h io.Writer, label, path string) error {
	if _, err := io.WriteString(h, label); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(h, f)
	return err
}

func packetDir(root string, p Packet) string {
	return filepath.Join(root, p.H)
}
