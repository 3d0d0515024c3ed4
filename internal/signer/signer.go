// Package signer resolves the proxy account's signing key from its
// configured secret. Derivation is purely local; it runs once at startup
// and a failure there is fatal.
package signer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
)

// SeedKind is the syntactic shape of a proxy secret.
type SeedKind int

const (
	// SeedMnemonic is a BIP-39 phrase of 12 or 24 words.
	SeedMnemonic SeedKind = iota
	// SeedHex is a raw 32-byte seed: 0x followed by 64 hex characters.
	SeedHex
	// SeedURI is a derivation URI such as //Collator.
	SeedURI
	// SeedInvalid matches none of the accepted shapes.
	SeedInvalid
)

func (k SeedKind) String() string {
	switch k {
	case SeedMnemonic:
		return "mnemonic"
	case SeedHex:
		return "hex seed"
	case SeedURI:
		return "derivation URI"
	}
	return "invalid"
}

var hexSeedRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Classify determines the seed kind by shape alone: hex is 0x plus exactly
// 64 hex chars, a URI starts with //, anything else is a mnemonic when it
// has exactly 12 or 24 words and invalid otherwise.
func Classify(seed string) SeedKind {
	seed = strings.TrimSpace(seed)
	switch {
	case seed == "":
		return SeedInvalid
	case strings.HasPrefix(seed, "0x"):
		if hexSeedRe.MatchString(seed) {
			return SeedHex
		}
		return SeedInvalid
	case strings.HasPrefix(seed, "//"):
		return SeedURI
	default:
		words := strings.Fields(seed)
		if len(words) == 12 || len(words) == 24 {
			return SeedMnemonic
		}
		return SeedInvalid
	}
}

// Proxy holds the validated proxy secret and derives per-ecosystem keyrings
// on demand. The secret itself never leaves this package.
type Proxy struct {
	secret string
	kind   SeedKind
	// derived once with the generic substrate prefix to fail fast at startup
	checkAddress string
}

// New validates and derives the proxy secret. The returned Proxy is shared
// immutably by all monitors.
func New(seed string) (*Proxy, error) {
	seed = strings.TrimSpace(seed)
	kind := Classify(seed)
	if kind == SeedInvalid {
		return nil, fmt.Errorf("proxy seed is not a 12/24-word mnemonic, 0x hex seed, or //derivation URI")
	}

	// Generic substrate format; proves the secret derives without network I/O.
	pair, err := signature.KeyringPairFromSecret(seed, 42)
	if err != nil {
		return nil, fmt.Errorf("derive proxy key from %s: %w", kind, err)
	}

	return &Proxy{secret: seed, kind: kind, checkAddress: pair.Address}, nil
}

// Kind reports the syntactic shape of the configured secret.
func (p *Proxy) Kind() SeedKind {
	return p.kind
}

// Keyring derives the sr25519 keypair rendered for the given SS58 prefix.
func (p *Proxy) Keyring(ss58Prefix uint16) (signature.KeyringPair, error) {
	pair, err := signature.KeyringPairFromSecret(p.secret, ss58Prefix)
	if err != nil {
		return signature.KeyringPair{}, fmt.Errorf("derive proxy key: %w", err)
	}
	return pair, nil
}

// Address returns the proxy account address for the given SS58 prefix.
func (p *Proxy) Address(ss58Prefix uint16) (string, error) {
	pair, err := p.Keyring(ss58Prefix)
	if err != nil {
		return "", err
	}
	return pair.Address, nil
}

// String deliberately hides the secret.
func (p *Proxy) String() string {
	return fmt.Sprintf("proxy(%s, %s)", p.kind, p.checkAddress)
}
