package provision

import (
	"bytes"
	"time"

	"github.com/apex/log"
)

// MatchKind is the outcome of looking up an embedded certificate among the
// local signing identities.
type MatchKind int

const (
	// MatchAbsent means no signing identity with the same certificate exists.
	MatchAbsent MatchKind = iota
	// MatchValid means the identity exists and its certificate has not expired.
	MatchValid
	// MatchExpired means the identity exists but its certificate has expired.
	MatchExpired
	// MatchUnreadable means the certificate subject or validity could not be parsed.
	MatchUnreadable
)

func (k MatchKind) String() string {
	switch k {
	case MatchAbsent:
		return "absent"
	case MatchValid:
		return "valid"
	case MatchExpired:
		return "expired"
	case MatchUnreadable:
		return "unreadable"
	default:
		return "unknown"
	}
}

// CertificateResult is the classification of one embedded certificate.
type CertificateResult struct {
	Name   string
	Match  MatchKind
	Status Status // only meaningful for MatchValid and MatchExpired
	Days   int
	End    time.Time
	Err    error // set for MatchUnreadable
}

// Matcher classifies embedded certificates against an identity snapshot.
type Matcher struct {
	Parser   CertificateParser
	Snapshot IdentitySnapshot
}

// NewMatcher returns a Matcher; a nil parser means X509Parser.
func NewMatcher(snapshot IdentitySnapshot, parser CertificateParser) *Matcher {
	if parser == nil {
		parser = X509Parser{}
	}
	return &Matcher{Parser: parser, Snapshot: snapshot}
}

// Match classifies cert at now with the given warning threshold.
// A display-name collision with a different certificate counts as absent.
func (m *Matcher) Match(cert *Certificate, now time.Time, warnDays int) CertificateResult {
	name, err := cert.DisplayName(m.Parser)
	if err != nil {
		return CertificateResult{Match: MatchUnreadable, Err: err}
	}
	res := CertificateResult{Name: name, Match: MatchAbsent}

	identity, ok := m.Snapshot.Lookup(name)
	if !ok {
		log.Debugf("no signing identity for %s", name)
		return res
	}
	if !bytes.Equal(identity, cert.Raw) {
		log.Debugf("signing identity %s has a different certificate", name)
		return res
	}

	end, err := cert.EndDate(m.Parser)
	if err != nil {
		res.Match = MatchUnreadable
		res.Err = err
		return res
	}
	res.End = end
	res.Status, res.Days = ClassifyDate(now, end, warnDays)
	if res.Status == StatusExpired {
		res.Match = MatchExpired
	} else {
		res.Match = MatchValid
	}
	return res
}

// MatchAll classifies every certificate of p in order.
func (m *Matcher) MatchAll(p *ProvisioningProfile, now time.Time, warnDays int) []CertificateResult {
	results := make([]CertificateResult, 0, len(p.DeveloperCertificates))
	for _, cert := range p.DeveloperCertificates {
		results = append(results, m.Match(cert, now, warnDays))
	}
	return results
}

// HasValidCertificate reports whether at least one result is MatchValid.
func HasValidCertificate(results []CertificateResult) bool {
	for _, r := range results {
		if r.Match == MatchValid {
			return true
		}
	}
	return false
}
