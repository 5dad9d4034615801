package provision

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/blacktop/go-macho"
	"howett.net/plist"
)

const embeddedProfileName = "embedded.mobileprovision"

// isAppBundle reports whether p names an .app bundle directory.
func isAppBundle(p string) bool {
	if !strings.EqualFold(filepath.Ext(strings.TrimRight(p, string(os.PathSeparator))), ".app") {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func isIPA(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".ipa")
}

// ReadIPAProfile returns the embedded provisioning profile of the app inside
// an IPA file and its path within the archive.
func ReadIPAProfile(ipaPath string) ([]byte, string, error) {
	r, err := zip.OpenReader(ipaPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open IPA: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		// Payload/<name>.app/embedded.mobileprovision
		dir, base := path.Split(f.Name)
		if base != embeddedProfileName {
			continue
		}
		dir = strings.TrimSuffix(dir, "/")
		if path.Dir(dir) != "Payload" || !strings.HasSuffix(dir, ".app") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, "", fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		return data, f.Name, nil
	}
	return nil, "", fmt.Errorf("no %s found in IPA", embeddedProfileName)
}

// GetAppExecutableName extracts the executable name from an app's Info.plist
func GetAppExecutableName(appPath string) (string, error) {
	data, err := os.ReadFile(filepath.Join(appPath, "Info.plist"))
	if err != nil {
		return "", fmt.Errorf("failed to read Info.plist: %w", err)
	}

	var info map[string]interface{}
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return "", fmt.Errorf("failed to parse Info.plist: %w", err)
	}

	execName, ok := info["CFBundleExecutable"].(string)
	if !ok || execName == "" {
		return "", fmt.Errorf("CFBundleExecutable not found in Info.plist")
	}
	return execName, nil
}

// SignedApplicationIdentifier returns the application-identifier entitlement
// the main executable of an .app bundle was signed with.
func SignedApplicationIdentifier(appPath string) (string, error) {
	execName, err := GetAppExecutableName(appPath)
	if err != nil {
		return "", err
	}
	xml, err := signedEntitlements(filepath.Join(appPath, execName))
	if err != nil {
		return "", err
	}
	if xml == "" {
		return "", fmt.Errorf("%s has no entitlements", execName)
	}

	var entitlements map[string]interface{}
	if _, err := plist.Unmarshal([]byte(xml), &entitlements); err != nil {
		return "", fmt.Errorf("failed to parse entitlements of %s: %w", execName, err)
	}
	for _, key := range []string{"application-identifier", "com.apple.application-identifier"} {
		if appID, ok := entitlements[key].(string); ok {
			return appID, nil
		}
	}
	return "", fmt.Errorf("%s has no application-identifier entitlement", execName)
}

// signedEntitlements returns the XML entitlements blob of a thin or fat
// Mach-O. For fat files the first slice is used.
func signedEntitlements(binPath string) (string, error) {
	var m *macho.File

	fat, err := macho.OpenFat(binPath)
	switch {
	case err == nil:
		defer fat.Close()
		if len(fat.Arches) == 0 {
			return "", fmt.Errorf("%s has no architectures", binPath)
		}
		m = fat.Arches[0].File
	case err == macho.ErrNotFat:
		m, err = macho.Open(binPath)
		if err != nil {
			return "", fmt.Errorf("failed to parse Mach-O %s: %w", binPath, err)
		}
		defer m.Close()
	default:
		return "", fmt.Errorf("failed to parse Mach-O %s: %w", binPath, err)
	}

	cs := m.CodeSignature()
	if cs == nil {
		return "", fmt.Errorf("%s is not code signed", binPath)
	}
	return cs.Entitlements, nil
}
