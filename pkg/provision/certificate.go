package provision

import (
	"bufio"
	"bytes"
	"crypto/x509"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Subject holds the certificate subject components used for display names.
// Empty components are rendered as "-".
type Subject struct {
	CommonName         string
	OrganizationalUnit string
	Organization       string
}

// DisplayName returns "{CN} {OU} {O}".
func (s Subject) DisplayName() string {
	return fmt.Sprintf("%s %s %s", orDash(s.CommonName), orDash(s.OrganizationalUnit), orDash(s.Organization))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// CertificateParser reads the fields of a DER certificate needed for
// matching and expiration checks.
type CertificateParser interface {
	ParseSubject(der []byte) (Subject, error)
	ParseValidity(der []byte) (time.Time, error)
}

// X509Parser parses certificates with crypto/x509.
type X509Parser struct{}

func (X509Parser) ParseSubject(der []byte) (Subject, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return Subject{}, err
	}
	var s Subject
	s.CommonName = cert.Subject.CommonName
	if len(cert.Subject.OrganizationalUnit) > 0 {
		s.OrganizationalUnit = cert.Subject.OrganizationalUnit[0]
	}
	if len(cert.Subject.Organization) > 0 {
		s.Organization = cert.Subject.Organization[0]
	}
	return s, nil
}

func (X509Parser) ParseValidity(der []byte) (time.Time, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return time.Time{}, err
	}
	return cert.NotAfter, nil
}

// openSSLDateLayout is the format of "notAfter=" lines, e.g. "Jan  8 16:54:40 2016 GMT".
const openSSLDateLayout = "Jan _2 15:04:05 2006 MST"

// OpenSSLParser parses certificates by running the openssl command:
//
//	openssl x509 -inform DER -noout -subject -enddate -nameopt multiline
type OpenSSLParser struct {
	// Path to the openssl binary, "openssl" when empty
	Path string
	// Run executes the command with der on stdin. Defaults to os/exec.
	Run func(path string, der []byte, args ...string) ([]byte, error)
}

func (p OpenSSLParser) ParseSubject(der []byte) (Subject, error) {
	out, err := p.x509(der, "-subject", "-nameopt", "multiline")
	if err != nil {
		return Subject{}, err
	}
	return parseOpenSSLSubject(out)
}

func (p OpenSSLParser) ParseValidity(der []byte) (time.Time, error) {
	out, err := p.x509(der, "-enddate")
	if err != nil {
		return time.Time{}, err
	}
	return parseOpenSSLEndDate(out)
}

func (p OpenSSLParser) x509(der []byte, extra ...string) ([]byte, error) {
	path := p.Path
	if path == "" {
		path = "openssl"
	}
	args := append([]string{"x509", "-inform", "DER", "-noout"}, extra...)
	run := p.Run
	if run == nil {
		run = runWithStdin
	}
	out, err := run(path, der, args...)
	if err != nil {
		return nil, fmt.Errorf("%s x509 failed: %w", path, err)
	}
	return out, nil
}

func runWithStdin(path string, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.Command(path, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// parseOpenSSLSubject reads the multiline subject format:
//
//	subject=
//	    commonName                = iPhone Developer: Jane Doe (ABCDE12345)
//	    organizationalUnitName    = TEAM123456
//	    organizationName          = Example Inc.
func parseOpenSSLSubject(out []byte) (Subject, error) {
	var s Subject
	found := false
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "subject=") {
			found = true
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		// The first value of a repeated attribute wins, as in X509Parser.
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "commonName":
			setOnce(&s.CommonName, value)
		case "organizationalUnitName":
			setOnce(&s.OrganizationalUnit, value)
		case "organizationName":
			setOnce(&s.Organization, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return Subject{}, err
	}
	if !found {
		return Subject{}, fmt.Errorf("no subject in openssl output")
	}
	return s, nil
}

func setOnce(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

func parseOpenSSLEndDate(out []byte) (time.Time, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if value, ok := strings.CutPrefix(line, "notAfter="); ok {
			t, err := time.Parse(openSSLDateLayout, value)
			if err != nil {
				return time.Time{}, fmt.Errorf("invalid notAfter %q: %w", value, err)
			}
			return t, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return time.Time{}, err
	}
	return time.Time{}, fmt.Errorf("no notAfter in openssl output")
}
