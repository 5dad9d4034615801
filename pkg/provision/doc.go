// Package provision checks iOS provisioning profiles.
//
// A .mobileprovision file is a CMS (PKCS#7) signed container around a
// property list. Decode unwraps it into a ProvisioningProfile, a Matcher
// looks up every embedded developer certificate among the local signing
// identities, and Classify sorts profiles and certificates into OK, WARNING
// and EXPIRED bands.
//
// # Basic Usage
//
//	snapshot, err := provision.TakeSnapshot(provision.P12Store{Dir: dir}, provision.X509Parser{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	profile, err := provision.Decode(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res := provision.Evaluate(profile, provision.NewMatcher(snapshot, nil), time.Now(), 30)
//
// # Format strings
//
// Renderer expands printf-like format strings such as "%u %40n %e":
//
//	%e  ExpirationDate
//	%c  CreationDate
//	%u  UUID
//	%a  AppIDName
//	%t  TeamName
//	%n  Name
//	%%  a literal %
package provision
