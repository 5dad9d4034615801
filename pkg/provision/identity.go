package provision

import (
	"bufio"
	"bytes"
	"crypto"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/apex/log"
	gop12 "software.sslmate.com/src/go-pkcs12"
)

// IdentitySource lists the certificates of the locally usable signing
// identities (certificate plus private key).
type IdentitySource interface {
	// Name describes the source in error messages
	Name() string
	Certificates() ([][]byte, error)
}

// IdentitySnapshot maps a certificate display name to the DER bytes of the
// signing identity's certificate. It is read-only once taken.
type IdentitySnapshot map[string][]byte

// TakeSnapshot reads src once and indexes its certificates by display name.
// When two identities share a display name the later one wins.
func TakeSnapshot(src IdentitySource, parser CertificateParser) (IdentitySnapshot, error) {
	ders, err := src.Certificates()
	if err != nil {
		return nil, &KeychainAccessError{Source: src.Name(), Cause: err}
	}

	snapshot := make(IdentitySnapshot, len(ders))
	for i, der := range ders {
		subject, err := parser.ParseSubject(der)
		if err != nil {
			log.WithError(err).Warnf("skipping unreadable signing identity %d from %s", i, src.Name())
			continue
		}
		snapshot[subject.DisplayName()] = der
	}
	log.Debugf("loaded %d signing identities from %s", len(snapshot), src.Name())
	return snapshot, nil
}

// Lookup returns the identity certificate stored under name.
func (s IdentitySnapshot) Lookup(name string) ([]byte, bool) {
	der, ok := s[name]
	return der, ok
}

// StaticSource serves a fixed set of certificates.
type StaticSource [][]byte

func (StaticSource) Name() string { return "static identities" }

func (s StaticSource) Certificates() ([][]byte, error) { return s, nil }

// SigningIdentity represents a code signing identity (certificate + private key)
type SigningIdentity struct {
	Certificate *x509.Certificate
	PrivateKey  crypto.PrivateKey
	CertChain   []*x509.Certificate
}

// LoadSigningIdentity loads a signing identity from a PKCS#12 file
func LoadSigningIdentity(p12Data []byte, password string) (*SigningIdentity, error) {
	privateKey, cert, caCerts, err := gop12.DecodeChain(p12Data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode P12: %w", err)
	}
	if privateKey == nil {
		return nil, fmt.Errorf("P12 contains no private key")
	}

	chain := []*x509.Certificate{cert}
	chain = append(chain, caCerts...)

	return &SigningIdentity{
		Certificate: cert,
		PrivateKey:  privateKey,
		CertChain:   chain,
	}, nil
}

// P12Store reads signing identities from the .p12 files of a directory.
// Files that cannot be decoded with Password are skipped.
type P12Store struct {
	Dir      string
	Password string
}

func (s P12Store) Name() string { return s.Dir }

func (s P12Store) Certificates() ([][]byte, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}

	var certs [][]byte
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".p12" && ext != ".pfx") {
			continue
		}
		path := filepath.Join(s.Dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		identity, err := LoadSigningIdentity(data, s.Password)
		if err != nil {
			log.WithError(err).Warnf("skipping %s", path)
			continue
		}
		certs = append(certs, identity.Certificate.Raw)
	}
	return certs, nil
}

var (
	identityLine = regexp.MustCompile(`^\s*\d+\)\s+([0-9A-Fa-f]{40})\s+"`)
	sha1Line     = regexp.MustCompile(`^SHA-1 hash:\s*[0-9A-Fa-f]{40}`)
)

// SecurityTool reads signing identities from the macOS keychain with the
// security command. The identities listed by
//
//	security find-identity -v -p codesigning
//
// are matched by SHA-1 against the PEM output of
//
//	security find-certificate -a -Z -p
type SecurityTool struct {
	// Keychain restricts the search to one keychain file
	Keychain string
	// Run executes a command and returns its stdout. Defaults to os/exec.
	Run func(name string, args ...string) ([]byte, error)
}

func (s SecurityTool) Name() string {
	if s.Keychain != "" {
		return s.Keychain
	}
	return "keychain"
}

func (s SecurityTool) Certificates() ([][]byte, error) {
	run := s.Run
	if run == nil {
		run = func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).Output()
		}
	}
	keychain := func(args ...string) []string {
		if s.Keychain != "" {
			return append(args, s.Keychain)
		}
		return args
	}

	out, err := run("security", keychain("find-identity", "-v", "-p", "codesigning")...)
	if err != nil {
		return nil, fmt.Errorf("security find-identity failed: %w", err)
	}
	hashes := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if m := identityLine.FindStringSubmatch(scanner.Text()); m != nil {
			hashes[strings.ToUpper(m[1])] = true
		}
	}
	if len(hashes) == 0 {
		return nil, nil
	}

	out, err = run("security", keychain("find-certificate", "-a", "-Z", "-p")...)
	if err != nil {
		return nil, fmt.Errorf("security find-certificate failed: %w", err)
	}
	return certificatesWithHashes(out, hashes), nil
}

// certificatesWithHashes walks "SHA-1 hash:" lines each followed by a PEM
// block and keeps the certificates whose hash is in hashes.
func certificatesWithHashes(out []byte, hashes map[string]bool) [][]byte {
	var certs [][]byte
	rest := out
	for len(rest) > 0 {
		line, tail, _ := bytes.Cut(rest, []byte("\n"))
		rest = tail
		if !sha1Line.Match(bytes.TrimSpace(line)) {
			continue
		}
		block, remaining := pem.Decode(rest)
		if block == nil {
			continue
		}
		rest = remaining
		if block.Type != "CERTIFICATE" {
			continue
		}
		sum := sha1.Sum(block.Bytes)
		if hashes[strings.ToUpper(hex.EncodeToString(sum[:]))] {
			certs = append(certs, block.Bytes)
		}
	}
	return certs
}
