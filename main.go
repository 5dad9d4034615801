package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/aluedeke/go-provcheck/pkg/provision"
	"github.com/docopt/docopt-go"
)

const version = "1.0.0"

const usage = `go-provcheck - iOS Provisioning Profile Checker

Lists all installed provisioning profiles, or the given ones, and checks that
they have not expired and that a signing identity exists for their certificates.

Usage:
  go-provcheck [options] [<path>...]
  go-provcheck -h | --help
  go-provcheck --version

Arguments:
  <path>                      Path to, or UUID of, a provisioning profile, an .app bundle or an .ipa

Options:
  -f <fmt>, --format=<fmt>    Output format (default "%u %t %n", see Format below)
  -w <days>, --warnExpiration=<days>
                              Warn about profiles and certificates expiring within days
  -q, --quiet                 Don't print any output (only errors)
  -r, --delete                Delete expired profiles after confirmation
  --identities=<dir>          Directory of .p12 signing identities (or PROVCHECK_IDENTITIES env var)
  --password=<password>       Password for the .p12 files (or PROVCHECK_PASSWORD env var)
  --keychain=<path>           Keychain to read signing identities from (macOS only)
  --openssl                   Parse certificates with the openssl command
  --no-color                  Disable coloured output
  --config=<path>             Config file (default ~/.config/go-provcheck/config.yaml)
  -V, --verbose               Verbose output
  -h --help                   Show this help message
  --version                   Show version

Format:
  %e  ExpirationDate
  %c  CreationDate
  %u  UUID
  %a  AppIDName
  %t  TeamName
  %n  Name
  %%  a literal %
  A width after % pads the value with spaces, e.g. %40n.

Environment Variables:
  PROVCHECK_FORMAT            Output format (overridden by --format)
  PROVCHECK_WARN              Warning threshold in days (overridden by --warnExpiration)
  PROVCHECK_IDENTITIES        Directory of .p12 signing identities
  PROVCHECK_PASSWORD          Password for the .p12 files
  PROVCHECK_KEYCHAIN          Keychain to read signing identities from

Examples:
  # Check all installed profiles, warn 30 days ahead
  go-provcheck -w 30

  # Check one profile by UUID with a custom format
  go-provcheck -f "%40n %e" 351d20ea-a4c6-4e3d-ad00-1e275cbfead1

  # Check the profile embedded in an IPA against exported identities
  go-provcheck --identities=./certs --password=secret MyApp.ipa

  # Remove expired profiles
  go-provcheck -q -r
`

func main() {
	parser := &docopt.Parser{HelpHandler: func(err error, usage string) {
		if err != nil {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Println(usage)
		os.Exit(0)
	}}
	opts, err := parser.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		os.Exit(2)
	}

	log.SetHandler(clihandler.New(os.Stderr))

	cfg, err := loadConfig(opts, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	code, err := run(cfg, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	os.Exit(code)
}

func run(cfg *Config, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	if cfg.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	identities, err := identitySource(cfg)
	if err != nil {
		return 0, err
	}

	var parser provision.CertificateParser = provision.X509Parser{}
	if cfg.OpenSSL {
		parser = provision.OpenSSLParser{}
	}

	dirs := cfg.ProfileDirs
	if len(dirs) == 0 {
		dirs = provision.DefaultProfileDirs()
	}

	now := time.Now()
	clock := func() time.Time { return now }

	analyzer := &provision.Analyzer{
		Options: provision.Options{
			Format:   cfg.Format,
			WarnDays: cfg.WarnDays,
			Quiet:    cfg.Quiet,
		},
		Identities: identities,
		Parser:     parser,
		Resolver:   &provision.Resolver{Dirs: dirs},
		Renderer:   &provision.Renderer{Color: !cfg.NoColor, WarnDays: cfg.WarnDays, Now: clock},
		Stdout:     stdout,
		Reporter:   &provision.Reporter{W: stderr, Color: !cfg.NoColor},
		Now:        clock,
	}
	if cfg.Delete {
		analyzer.Deleter = &promptDeleter{in: bufio.NewReader(stdin), out: stdout}
	}

	summary, err := analyzer.Run(cfg.Paths)
	if err != nil {
		return 0, err
	}
	for _, path := range summary.Deleted {
		log.Infof("deleted %s", path)
	}
	return summary.ExitCode(), nil
}

// identitySource picks the .p12 directory when configured and the macOS
// keychain otherwise.
func identitySource(cfg *Config) (provision.IdentitySource, error) {
	if cfg.Identities != "" {
		return provision.P12Store{Dir: cfg.Identities, Password: cfg.Password}, nil
	}
	if runtime.GOOS == "darwin" {
		return provision.SecurityTool{Keychain: cfg.Keychain}, nil
	}
	return nil, &provision.KeychainAccessError{
		Source: "keychain",
		Cause:  fmt.Errorf("no keychain on %s, use --identities or PROVCHECK_IDENTITIES", runtime.GOOS),
	}
}

type promptDeleter struct {
	in  *bufio.Reader
	out io.Writer
}

func (d *promptDeleter) Confirm(paths []string) bool {
	fmt.Fprintln(d.out, "The following files will be deleted:")
	for _, path := range paths {
		fmt.Fprintf(d.out, "- %s\n", path)
	}
	fmt.Fprint(d.out, "\nDo you want to proceed (Y/n)?")

	answer, err := d.in.ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	return strings.HasPrefix(answer, "Y")
}

func (d *promptDeleter) Delete(path string) error {
	return os.Remove(path)
}
