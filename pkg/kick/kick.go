// Package kick classifies the free-form reasons a game server gives when it
// ends a connection, so callers can decide whether reconnecting is worthwhile.
package kick

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Classification is the retry-relevant category of a disconnect reason
type Classification string

const (
	Banned          Classification = "banned"
	Whitelisted     Classification = "whitelisted"
	ServerFull      Classification = "server_full"
	VersionMismatch Classification = "version_mismatch"
	DuplicateLogin  Classification = "duplicate_login"
	Unknown         Classification = "unknown"
)

// Result is the outcome of classifying one reason
type Result struct {
	Classification Classification `json:"classification"`
	// TargetVersion is the version the server asked for, if the reason named one.
	TargetVersion string `json:"targetVersion,omitempty"`
	// Reason is the plain-text reason after chat component unwrapping.
	Reason string `json:"reason"`
}

type rule struct {
	class    Classification
	patterns []*regexp.Regexp
}

// Rules are evaluated in order; the first match wins.
var rules = []rule{
	{DuplicateLogin, compile(
		`already logged in`,
		`logged in from another location`,
		`already (?:playing|connected|online)`,
		`duplicate_login`,
		`bereits eingeloggt`,
		`bereits auf dem server`,
	)},
	{Banned, compile(
		`\bbanned\b`,
		`\bban(?:ned)? from\b`,
		`disconnect\.banned`,
		`\bgebannt\b`,
		`\bgesperrt\b`,
	)},
	{Whitelisted, compile(
		`white-?list`,
		`not white-?listed`,
		`not_whitelisted`,
	)},
	{ServerFull, compile(
		// Letter boundaries only, so translate keys like server_full match.
		`(?:^|[^a-z])full(?:[^a-z]|$)`,
		`\bvoll\b`,
		`too many players`,
	)},
	{VersionMismatch, compile(
		`outdated[ _](?:client|server)`,
		`\bversion\b`,
		`incompatible`,
		`unsupported protocol`,
	)},
}

var versionPatterns = compile(
	`outdated_(?:client|server) (\d+\.\d+(?:\.\d+)?)`,
	`server is (?:on |running )?version (\d+\.\d+(?:\.\d+)?)`,
	`please use (?:version )?(\d+\.\d+(?:\.\d+)?)`,
	`requires? (?:version |minecraft )?(\d+\.\d+(?:\.\d+)?)`,
	`i'?m still on (\d+\.\d+(?:\.\d+)?)`,
)

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+e))
	}
	return out
}

// Classify maps a raw disconnect reason to a Classification. JSON chat
// components are unwrapped first. Empty or unrecognized reasons are Unknown.
func Classify(raw string) Result {
	reason := ParseReason(raw)
	res := Result{Classification: Unknown, Reason: reason}
	if strings.TrimSpace(reason) == "" {
		return res
	}

	for _, r := range rules {
		if matchAny(r.patterns, reason) {
			res.Classification = r.class
			break
		}
	}

	if res.Classification == VersionMismatch {
		res.TargetVersion = ExtractVersion(reason)
	}
	return res
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// ExtractVersion returns the target version embedded in a reason such as
// "Outdated client! Please use 1.20.4", or "" if none is found.
func ExtractVersion(reason string) string {
	for _, p := range versionPatterns {
		m := p.FindStringSubmatch(reason)
		if len(m) < 2 {
			continue
		}
		if _, err := semver.NewVersion(m[1]); err != nil {
			continue
		}
		return m[1]
	}
	return ""
}

// Retryable reports whether a reconnect may be attempted after a disconnect
// with the given classification.
func Retryable(c Classification) bool {
	switch c {
	case Banned, Whitelisted, DuplicateLogin:
		return false
	}
	return true
}

// Describe returns a short human explanation for a classification
func Describe(c Classification) string {
	switch c {
	case Banned:
		return "the bot was banned from this server; contact the server administrator"
	case Whitelisted:
		return "the server has a whitelist and the bot account is not on it"
	case ServerFull:
		return "the server is full; it will be retried later"
	case VersionMismatch:
		return "the game version does not match the server"
	case DuplicateLogin:
		return "a player with this name is already on the server; choose another bot name"
	default:
		return "the server closed the connection"
	}
}

// ParseReason unwraps a JSON chat component ({"text": ..., "extra": [...]})
// into plain text. Translate keys are kept, followed by their "with"
// arguments, since vanilla servers send reasons such as
// {"translate":"multiplayer.disconnect.outdated_client","with":["1.20.4"]}.
// Anything that is not a JSON component is returned as is.
func ParseReason(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[' && trimmed[0] != '"') {
		return raw
	}

	var component interface{}
	if err := json.Unmarshal([]byte(trimmed), &component); err != nil {
		return raw
	}

	var b strings.Builder
	flatten(&b, component)
	if text := strings.TrimSpace(b.String()); text != "" {
		return text
	}
	return raw
}

func flatten(b *strings.Builder, v interface{}) {
	switch c := v.(type) {
	case string:
		b.WriteString(c)
	case []interface{}:
		for _, part := range c {
			flatten(b, part)
		}
	case map[string]interface{}:
		if text, ok := c["text"].(string); ok {
			b.WriteString(text)
		}
		if key, ok := c["translate"].(string); ok && key != "" {
			b.WriteString(key)
		}
		if with, ok := c["with"].([]interface{}); ok {
			for i, part := range with {
				if i > 0 || b.Len() > 0 {
					b.WriteString(" ")
				}
				flatten(b, part)
			}
		}
		if extra, ok := c["extra"].([]interface{}); ok {
			for _, part := range extra {
				flatten(b, part)
			}
		}
	}
}
