package provision

import (
	"strings"
	"time"
)

// ProvisioningProfile represents a decoded .mobileprovision file.
// Values are only produced by Decode and FromRecord and are not modified
// afterwards.
type ProvisioningProfile struct {
	UUID                        string
	Name                        string
	AppIDName                   string
	TeamName                    string
	TeamIdentifier              []string
	ApplicationIdentifierPrefix []string
	Platform                    []string // optional
	Entitlements                map[string]interface{}
	DeveloperCertificates       []*Certificate
	CreationDate                time.Time
	ExpirationDate              time.Time
	TimeToLive                  int
	Version                     int

	// Optional fields shown for development and ad-hoc profiles
	ProvisionedDevices   []string
	ProvisionsAllDevices bool
}

// TeamID returns the team identifier from the profile
func (p *ProvisioningProfile) TeamID() string {
	if len(p.TeamIdentifier) > 0 {
		return p.TeamIdentifier[0]
	}
	if len(p.ApplicationIdentifierPrefix) > 0 {
		return p.ApplicationIdentifierPrefix[0]
	}
	return ""
}

// ApplicationIdentifier returns the application identifier from entitlements
func (p *ProvisioningProfile) ApplicationIdentifier() string {
	if appID, ok := p.Entitlements["application-identifier"].(string); ok {
		return appID
	}
	if appID, ok := p.Entitlements["com.apple.application-identifier"].(string); ok {
		return appID
	}
	return ""
}

// AllowsApplicationIdentifier reports whether appID is covered by the
// profile's application identifier, which may end in a "*" wildcard.
func (p *ProvisioningProfile) AllowsApplicationIdentifier(appID string) bool {
	allowed := p.ApplicationIdentifier()
	if allowed == "" {
		return false
	}
	if strings.HasSuffix(allowed, "*") {
		return strings.HasPrefix(appID, strings.TrimSuffix(allowed, "*"))
	}
	return allowed == appID
}

// DaysToExpiration returns the whole days left until the profile expires.
func (p *ProvisioningProfile) DaysToExpiration(now time.Time) int {
	return DaysRemaining(now, p.ExpirationDate)
}

// IsExpired checks if the provisioning profile has expired at now.
func (p *ProvisioningProfile) IsExpired(now time.Time) bool {
	return Classify(p.DaysToExpiration(now), 0) == StatusExpired
}

// IsDeviceAllowed checks if a specific device UDID is allowed by this profile
func (p *ProvisioningProfile) IsDeviceAllowed(udid string) bool {
	// Enterprise/distribution profiles provision all devices
	if p.ProvisionsAllDevices {
		return true
	}

	for _, device := range p.ProvisionedDevices {
		if device == udid {
			return true
		}
	}
	return false
}

// Certificate is a DER encoded developer certificate embedded in a profile.
// The display name and validity end are computed on first use and cached.
type Certificate struct {
	Raw []byte

	subjectDone bool
	subject     Subject
	subjectErr  error

	validityDone bool
	notAfter     time.Time
	validityErr  error
}

// NewCertificate wraps DER bytes.
func NewCertificate(der []byte) *Certificate {
	return &Certificate{Raw: der}
}

// DisplayName returns "{CN} {OU} {O}" for the certificate subject.
func (c *Certificate) DisplayName(parser CertificateParser) (string, error) {
	if !c.subjectDone {
		c.subject, c.subjectErr = parser.ParseSubject(c.Raw)
		if c.subjectErr != nil {
			c.subjectErr = &CertificateDecodeError{Field: "subject", Cause: c.subjectErr}
		}
		c.subjectDone = true
	}
	if c.subjectErr != nil {
		return "", c.subjectErr
	}
	return c.subject.DisplayName(), nil
}

// EndDate returns the end of the certificate validity period.
func (c *Certificate) EndDate(parser CertificateParser) (time.Time, error) {
	if !c.validityDone {
		c.notAfter, c.validityErr = parser.ParseValidity(c.Raw)
		if c.validityErr != nil {
			c.validityErr = &CertificateDecodeError{Field: "validity", Cause: c.validityErr}
		}
		c.validityDone = true
	}
	return c.notAfter, c.validityErr
}
