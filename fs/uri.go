package fs

import (
	"net/url"
	"strings"
)

// Scheme is a normalized provider scheme (spec §6: sftp, s3, plus s3
// aliases s3a/oss).
type Scheme string

const (
	SchemeSFTP Scheme = "sftp"
	SchemeS3   Scheme = "s3"
)

var schemeAliases = map[string]Scheme{
	"sftp": SchemeSFTP,
	"s3":   SchemeS3,
	"s3a":  SchemeS3,
	"oss":  SchemeS3,
}

// NormalizeScheme maps a raw URI scheme to its canonical Scheme,
// folding the s3 aliases (s3a, oss) to s3.
func NormalizeScheme(raw string) (Scheme, bool) {
	s, ok := schemeAliases[strings.ToLower(raw)]
	return s, ok
}

// ValidateForCreation checks a URI intended for Registry.add: must be
// absolute, scheme must resolve to a known provider, and it must carry
// no path other than "/", no query and no password (credentials travel
// in the Environment, not the URI, per spec §6). A username without a
// password is accepted; RegistryKey keeps it.
func ValidateForCreation(raw string) (*url.URL, Scheme, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", NewPath(KindInvalidArgument, raw, "malformed URI")
	}
	if !u.IsAbs() {
		return nil, "", NewPath(KindInvalidArgument, raw, "URI must be absolute")
	}
	scheme, ok := NormalizeScheme(u.Scheme)
	if !ok {
		return nil, "", NewPath(KindInvalidArgument, raw, "unrecognized scheme: "+u.Scheme)
	}
	if u.Path != "" && u.Path != "/" {
		return nil, "", NewPath(KindInvalidArgument, raw, "creation URI must not carry a path")
	}
	if u.RawQuery != "" {
		return nil, "", NewPath(KindInvalidArgument, raw, "creation URI must not carry a query")
	}
	if u.User != nil {
		if _, hasPw := u.User.Password(); hasPw {
			return nil, "", NewPath(KindInvalidArgument, raw, "creation URI must not carry user-info")
		}
	}
	return u, scheme, nil
}

// ValidateForResolution checks a URI intended for Registry.get /
// path resolution: must be absolute, scheme known, and must carry a
// path. An optional fragment is permitted as a per-call bucket
// override for object stores.
func ValidateForResolution(raw string) (*url.URL, Scheme, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", NewPath(KindInvalidArgument, raw, "malformed URI")
	}
	if !u.IsAbs() {
		return nil, "", NewPath(KindInvalidArgument, raw, "URI must be absolute")
	}
	scheme, ok := NormalizeScheme(u.Scheme)
	if !ok {
		return nil, "", NewPath(KindInvalidArgument, raw, "unrecognized scheme: "+u.Scheme)
	}
	if u.Path == "" {
		return nil, "", NewPath(KindInvalidArgument, raw, "resolution URI requires a path")
	}
	return u, scheme, nil
}

// RegistryKey computes the registry map key for a creation URI: scheme,
// host, port and username survive; password, path, query and fragment
// are discarded (spec §6).
func RegistryKey(u *url.URL, scheme Scheme) string {
	var b strings.Builder
	b.WriteString(string(scheme))
	b.WriteString("://")
	if u.User != nil {
		b.WriteString(u.User.Username())
		b.WriteString("@")
	}
	b.WriteString(u.Host)
	return b.String()
}

// RegistryKeyWithBucket is the second key shape of spec §6
// (getURIWithUsername): additionally carries a bucket, used where the
// bucket distinguishes otherwise-identical endpoints.
func RegistryKeyWithBucket(u *url.URL, scheme Scheme, bucket string) string {
	return RegistryKey(u, scheme) + "/" + bucket
}

// BucketOverride extracts the optional fragment bucket override from a
// resolution URI (spec §6).
func BucketOverride(u *url.URL) (string, bool) {
	if u.Fragment == "" {
		return "", false
	}
	return u.Fragment, true
}
