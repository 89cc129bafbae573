// Package redact scrubs credential-shaped substrings out of the
// command-line arguments and environment snapshot chainsaw's run log
// records for a single invocation. A --tau filter, a --rules path, or a
// UNC artefact location an operator pasted in can legitimately carry a
// live credential - most commonly a share accessed with embedded SMB
// creds, or a cloud-synced evidence bucket key - and none of that
// belongs in cleartext in ~/.chainsaw/runs.jsonl.
package redact

import (
	"regexp"
	"strings"
)

const placeholder = "[REDACTED]"

// cloudCredentialPatterns match credential material an operator might
// carry in a --tau expression or a config path when chainsaw's evidence
// source is a cloud-synced share rather than a local mount.
var cloudCredentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(aws_access_key_id|aws_secret_access_key|aws_session_token)\s*[=:]\s*['"]?[A-Za-z0-9/+=]{20,}['"]?`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)(github_token|gh_token|github_pat)\s*[=:]\s*['"]?[A-Za-z0-9_-]{30,}['"]?`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`(?i)(api_key|apikey|api-key|secret_key|secretkey|secret-key|access_token|auth_token)\s*[=:]\s*['"]?[A-Za-z0-9_-]{16,}['"]?`),
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_-]{20,}`),
}

// remoteCollectionPatterns match credential material specific to
// pulling artefacts off a live or imaged Windows host over SMB or
// WinRM: a UNC/URL path or a net use invocation with an embedded
// username and password, a password flag passed directly on the
// command line instead of through a credential cache, or a bare NTLM
// hash pair pasted into a filter.
var remoteCollectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(https?|smb|cifs)://[^\s:/@]+:[^\s@]+@`),
	regexp.MustCompile(`(?i)net\s+use\b[^\r\n]*?\s+\S+\s+/user:\S+`),
	regexp.MustCompile(`(?i)(--?password|--?pass|-p)\s+['"]?\S{4,}['"]?`),
	regexp.MustCompile(`[0-9a-fA-F]{32}:[0-9a-fA-F]{32}`),
}

var allPatterns = append(append([]*regexp.Regexp{}, cloudCredentialPatterns...), remoteCollectionPatterns...)

// sensitiveEnvNames names environment variables redacted by name rather
// than by pattern match, since their values carry no recognisable shape
// of their own.
var sensitiveEnvNames = []string{
	"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN",
	"GITHUB_TOKEN", "GH_TOKEN", "GITHUB_PAT",
	"API_KEY", "SECRET_KEY", "AUTH_TOKEN", "ACCESS_TOKEN",
	"PASSWORD", "PASSWD",
	"SMB_PASSWORD", "WINRM_PASSWORD", "KRB5_PASSWORD", "NTLM_HASH",
	"DATABASE_URL",
}

// Scrub replaces every credential-shaped substring of s with a fixed
// placeholder.
func Scrub(s string) string {
	out := s
	for _, pattern := range allPatterns {
		out = pattern.ReplaceAllString(out, placeholder)
	}
	return out
}

// Args scrubs a full argv slice (as chainsaw receives it, os.Args[1:])
// element by element, so one credential-bearing argument doesn't force
// redacting its neighbours too.
func Args(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = Scrub(arg)
	}
	return out
}

// EnvVars scrubs a NAME=VALUE environment snapshot, redacting a
// variable's value outright when its name matches sensitiveEnvNames and
// leaving it untouched otherwise - env values aren't pattern-scrubbed
// the way args are, since an operator's PATH or COMPUTERNAME would
// otherwise risk a false-positive redaction.
func EnvVars(vars []string) []string {
	out := make([]string, 0, len(vars))
	for _, v := range vars {
		name, value, ok := strings.Cut(v, "=")
		if !ok {
			out = append(out, v)
			continue
		}
		upper := strings.ToUpper(name)
		for _, sensitive := range sensitiveEnvNames {
			if strings.Contains(upper, sensitive) {
				value = placeholder
				break
			}
		}
		out = append(out, name+"="+value)
	}
	return out
}
