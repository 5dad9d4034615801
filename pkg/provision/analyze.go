package provision

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/apex/log"
)

// Options control an analysis run.
type Options struct {
	Format   string // DefaultFormat when empty
	WarnDays int    // 0 disables expiration warnings
	Quiet    bool   // do not render profiles to Stdout
}

// Deleter removes expired profiles after the user agreed.
type Deleter interface {
	Confirm(paths []string) bool
	Delete(path string) error
}

// Analyzer checks a batch of profiles against the local signing identities.
type Analyzer struct {
	Options

	Identities IdentitySource
	Parser     CertificateParser // X509Parser when nil
	Resolver   *Resolver
	Renderer   *Renderer
	Deleter    Deleter // nil disables deletion

	Stdout   io.Writer
	Reporter *Reporter
	Now      func() time.Time // time.Now when nil
}

// Result is the analysis of one profile.
type Result struct {
	Source       *Source
	Profile      *ProvisioningProfile
	Status       Status
	Days         int
	Certificates []CertificateResult
	// Failed is set when the profile expired or none of its certificates
	// belongs to a usable signing identity.
	Failed bool
}

// Summary aggregates a run.
type Summary struct {
	Results []*Result
	Errors  []error // per-argument errors that were reported and skipped
	Deleted []string
	Failed  bool
}

// ExitCode returns 0 for success and 1 when any profile failed.
func (s *Summary) ExitCode() int {
	if s.Failed {
		return 1
	}
	return 0
}

// Evaluate classifies a profile and all of its certificates at now.
//
// Every certificate is evaluated. The profile fails when it has expired or
// when not a single certificate is valid; one valid certificate among any
// number of absent, expired or unreadable ones is enough. Warnings never fail
// a profile.
func Evaluate(p *ProvisioningProfile, m *Matcher, now time.Time, warnDays int) *Result {
	res := &Result{Profile: p}
	res.Status, res.Days = ClassifyDate(now, p.ExpirationDate, warnDays)
	res.Certificates = m.MatchAll(p, now, warnDays)
	res.Failed = res.Status == StatusExpired || !HasValidCertificate(res.Certificates)
	return res
}

// Run analyses every argument, or every installed profile when args is empty.
// The identity snapshot is taken once; failing to take it aborts the run.
// Other failures are reported and the run continues with the next argument.
func (a *Analyzer) Run(args []string) (*Summary, error) {
	now := time.Now()
	if a.Now != nil {
		now = a.Now()
	}
	parser := a.Parser
	if parser == nil {
		parser = X509Parser{}
	}
	if a.Resolver == nil {
		a.Resolver = &Resolver{Dirs: DefaultProfileDirs()}
	}
	if a.Renderer == nil {
		a.Renderer = &Renderer{WarnDays: a.WarnDays}
	}
	// Days are counted in the renderer's location, with one clock per run.
	now = now.In(a.Renderer.location())
	if a.Renderer.Now == nil {
		a.Renderer.Now = func() time.Time { return now }
	}
	if a.Stdout == nil {
		a.Stdout = io.Discard
	}
	if a.Reporter == nil {
		a.Reporter = &Reporter{W: io.Discard}
	}

	snapshot, err := TakeSnapshot(a.Identities, parser)
	if err != nil {
		return nil, err
	}
	matcher := NewMatcher(snapshot, parser)

	if len(args) == 0 {
		if args, err = a.Resolver.List(); err != nil {
			return nil, err
		}
		log.Debugf("found %d installed profiles", len(args))
	}

	summary := &Summary{}
	var expired []string
	for _, arg := range args {
		res, err := a.analyze(arg, matcher, now)
		if err != nil {
			a.Reporter.Errorf("%v", err)
			summary.Errors = append(summary.Errors, err)
			continue
		}
		summary.Results = append(summary.Results, res)
		if res.Failed {
			summary.Failed = true
		}
		if res.Status == StatusExpired && res.Source.Deletable() {
			expired = append(expired, res.Source.Path)
		}
	}

	if a.Deleter != nil && len(expired) > 0 && a.Deleter.Confirm(expired) {
		for _, path := range expired {
			if err := a.Deleter.Delete(path); err != nil {
				a.Reporter.Errorf("failed to delete %s: %v", path, err)
				continue
			}
			summary.Deleted = append(summary.Deleted, path)
		}
	}

	return summary, nil
}

func (a *Analyzer) analyze(arg string, m *Matcher, now time.Time) (*Result, error) {
	src, err := a.Resolver.Resolve(arg)
	if err != nil {
		var perr *PathResolutionError
		if errors.As(err, &perr) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", arg, err)
	}

	p, err := Decode(src.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", src.Path, err)
	}

	if !a.Quiet {
		format := a.Format
		if format == "" {
			format = DefaultFormat
		}
		fmt.Fprintln(a.Stdout, a.Renderer.Render(p, format))
	}

	res := Evaluate(p, m, now, a.WarnDays)
	res.Source = src
	a.report(res)
	if src.App != "" {
		a.checkApp(src.App, p)
	}
	return res, nil
}

func (a *Analyzer) report(res *Result) {
	p := res.Profile
	switch res.Status {
	case StatusExpired:
		a.Reporter.Errorf("%s %s is expired", p.UUID, p.Name)
	case StatusWarning:
		a.Reporter.Warnf("%s will expire in %d days", p.UUID, res.Days)
	}

	for i, cr := range res.Certificates {
		switch cr.Match {
		case MatchExpired:
			a.Reporter.Errorf("%s %s certificate %s is expired", p.UUID, p.Name, cr.Name)
		case MatchValid:
			if cr.Status == StatusWarning {
				a.Reporter.Warnf("%s certificate %s will expire in %d days", p.UUID, cr.Name, cr.Days)
			}
		case MatchUnreadable:
			a.Reporter.Errorf("%s %s certificate %d: %v", p.UUID, p.Name, i+1, cr.Err)
		}
	}

	if !HasValidCertificate(res.Certificates) {
		a.Reporter.Errorf("%s %s has no valid signing certificate", p.UUID, p.Name)
	}
}

// checkApp compares the application identifier the bundle was signed for
// with the one the profile grants.
func (a *Analyzer) checkApp(appPath string, p *ProvisioningProfile) {
	appID, err := SignedApplicationIdentifier(appPath)
	if err != nil {
		log.WithError(err).Debugf("skipping entitlement check for %s", appPath)
		return
	}
	if !p.AllowsApplicationIdentifier(appID) {
		a.Reporter.Warnf("%s %s does not cover %s signed into %s", p.UUID, p.Name, appID, appPath)
	}
}
