package provision

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apex/log"
)

// ProfileExtension is the file extension of installed provisioning profiles.
const ProfileExtension = ".mobileprovision"

// DefaultProfileDirs returns the directories Xcode installs profiles into,
// the current location first.
func DefaultProfileDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, "Library", "Developer", "Xcode", "UserData", "Provisioning Profiles"),
		filepath.Join(home, "Library", "MobileDevice", "Provisioning Profiles"),
	}
}

// Source is a resolved profile argument.
type Source struct {
	Arg  string
	Path string // file the bytes were read from (the .ipa for archives)
	Data []byte
	App  string // .app bundle the profile is embedded in, if any
}

// Deletable reports whether the source is a standalone profile file.
func (s *Source) Deletable() bool {
	return s.App == "" && !isIPA(s.Path)
}

// Resolver maps command line arguments to profile files.
type Resolver struct {
	Dirs []string
}

// Resolve tries, in order: arg as a path, arg as a file name in each profile
// directory, and the same with ProfileExtension appended. A path naming an
// .app bundle or an .ipa resolves to the embedded profile.
func (r *Resolver) Resolve(arg string) (*Source, error) {
	candidates := []string{arg}
	if !filepath.IsAbs(arg) {
		for _, dir := range r.Dirs {
			candidates = append(candidates, filepath.Join(dir, arg))
		}
		if !strings.HasSuffix(arg, ProfileExtension) {
			for _, dir := range r.Dirs {
				candidates = append(candidates, filepath.Join(dir, arg+ProfileExtension))
			}
		}
	}

	for _, candidate := range candidates {
		src, err := r.open(arg, candidate)
		if err != nil {
			return nil, err
		}
		if src != nil {
			log.WithField("path", src.Path).Debugf("resolved %s", arg)
			return src, nil
		}
	}
	return nil, &PathResolutionError{Arg: arg, Tried: candidates}
}

// open returns nil, nil when candidate does not exist.
func (r *Resolver) open(arg, candidate string) (*Source, error) {
	info, err := os.Stat(candidate)
	if err != nil {
		return nil, nil
	}

	switch {
	case info.IsDir() && isAppBundle(candidate):
		embedded := filepath.Join(candidate, embeddedProfileName)
		data, err := os.ReadFile(embedded)
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded profile of %s: %w", candidate, err)
		}
		return &Source{Arg: arg, Path: embedded, Data: data, App: candidate}, nil
	case info.IsDir():
		return nil, nil
	case isIPA(candidate):
		data, _, err := ReadIPAProfile(candidate)
		if err != nil {
			return nil, err
		}
		return &Source{Arg: arg, Path: candidate, Data: data}, nil
	default:
		data, err := os.ReadFile(candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to read profile: %w", err)
		}
		return &Source{Arg: arg, Path: candidate, Data: data}, nil
	}
}

// List returns the profile files in the profile directories, sorted per
// directory. Missing directories are skipped.
func (r *Resolver) List() ([]string, error) {
	var paths []string
	for _, dir := range r.Dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to list %s: %w", dir, err)
		}
		var found []string
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || strings.HasPrefix(name, ".") {
				continue
			}
			found = append(found, filepath.Join(dir, name))
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}
