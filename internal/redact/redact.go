package redact

import (
	"regexp"
	"unicode/utf8"
)

type rewrite struct {
	re   *regexp.Regexp
	repl string
}

// Order matters: whole-block shapes first, then provider token shapes, then
// the generic key=value form so already-masked values are left alone.
var rewrites = []rewrite{
	{regexp.MustCompile(`-----BEGIN [A-Z0-9 ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z0-9 ]*PRIVATE KEY-----`), "[REDACTED PRIVATE KEY]"},
	{regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://[^\s:/@]+:)([^\s@/]+)(@)`), "${1}[REDACTED]${3}"},
	{regexp.MustCompile(`\b(A3T|AKIA|ASIA|AGPA|AIDA|ANPA|ANVA|AROA|AIPA)[0-9A-Z]{16}\b`), "[REDACTED_AWS_ACCESS_KEY]"},
	{regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{20,}\b|\bgithub_pat_[A-Za-z0-9_]{20,}`), "[REDACTED_GITHUB_TOKEN]"},
	{regexp.MustCompile(`\bglpat-[A-Za-z0-9_-]{20,}`), "[REDACTED_GITLAB_TOKEN]"},
	{regexp.MustCompile(`\b[rsp]k_(live|test)_[A-Za-z0-9]{10,}`), "[REDACTED_STRIPE_KEY]"},
	{regexp.MustCompile(`\bxox[abposr]-[A-Za-z0-9-]{10,}`), "[REDACTED_SLACK_TOKEN]"},
	{regexp.MustCompile(`\bsk-(ant-|proj-|svcacct-)?[A-Za-z0-9_-]{20,}`), "[REDACTED_API_KEY]"},
	{regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{35}`), "[REDACTED_GOOGLE_API_KEY]"},
	{regexp.MustCompile(`\bSG\.[A-Za-z0-9_-]{16,}\.[A-Za-z0-9_-]{16,}`), "[REDACTED_SENDGRID_KEY]"},
	{regexp.MustCompile(`\bhf_[A-Za-z0-9]{30,}`), "[REDACTED_HF_TOKEN]"},
	{regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{5,}\.eyJ[A-Za-z0-9_-]{5,}\.[A-Za-z0-9_-]*`), "[REDACTED_JWT]"},
	{regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._~+/=-]{8,}`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`(?i)\b([A-Za-z0-9_-]*(?:api[_-]?key|secret|token|password|passwd|pwd)[A-Za-z0-9_-]*)(["']?\s*[:=]\s*)(["']?)([A-Za-z0-9._~+/=@!#$%^&*-]{8,})(["']?)`), `${1}${2}${3}[REDACTED]${5}`},
}

// Text masks common secret and token shapes before snippets, logs or
// reports leave the process.
func Text(in string) string {
	out := in
	for _, rw := range rewrites {
		out = rw.re.ReplaceAllString(out, rw.repl)
	}
	return out
}

func Strings(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := make([]string, 0, len(in))
	for _, item := range in {
		out = append(out, Text(item))
	}
	return out
}

// maskKeep is how many leading characters of a secret stay readable.
const maskKeep = 4

// Mask keeps the first four characters of a secret and hides the rest
// behind a fixed-width run of asterisks so the length is not revealed.
func Mask(secret string) string {
	if utf8.RuneCountInString(secret) <= maskKeep {
		return "****"
	}
	n := 0
	for i := range secret {
		if n == maskKeep {
			return secret[:i] + "****"
		}
		n++
	}
	return secret
}
