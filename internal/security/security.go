// Package security audits job configurations for risky settings before a
// run: credentials written into the file, plain-HTTP seeds and crawl
// settings that ignore site policy.
package security

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/valpere/extractstudio/internal/config"
	"github.com/valpere/extractstudio/internal/utils"
)

// Severity levels for security issues
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

// weight is the risk score contribution of one issue.
func (s Severity) weight() int {
	return [...]int{0, 5, 15, 30, 50}[s]
}

// MaxURLLength is the longest seed URL accepted without a warning.
const MaxURLLength = 2048

// Issue is one finding of an audit.
type Issue struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	Field       string   `json:"field,omitempty"`
	Remediation string   `json:"remediation,omitempty"`
}

// Result collects the findings of an audit.
type Result struct {
	// Valid is false when any critical issue was found.
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
	// RiskScore is 0-100, higher is more risky.
	RiskScore int `json:"risk_score"`
}

func (r *Result) add(issue Issue) {
	r.Issues = append(r.Issues, issue)
	r.RiskScore += issue.Severity.weight()
	if r.RiskScore > 100 {
		r.RiskScore = 100
	}
	if issue.Severity == SeverityCritical {
		r.Valid = false
	}
}

// Auditor checks jobs against a blocklist and the built-in rules.
type Auditor struct {
	blockedDomains []string
	logger         utils.Logger
}

// NewAuditor creates an auditor. Seeds on blockedDomains or their
// subdomains are reported as high severity.
func NewAuditor(blockedDomains []string, logger utils.Logger) *Auditor {
	blocked := make([]string, 0, len(blockedDomains))
	for _, d := range blockedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			blocked = append(blocked, d)
		}
	}
	return &Auditor{blockedDomains: blocked, logger: utils.OrNop(logger)}
}

var (
	dsnLine = regexp.MustCompile(`(?m)^\s*dsn:\s*(.+?)\s*$`)
	// userinfo with a password, or a key=value password.
	dsnPassword = regexp.MustCompile(`(?i)(://[^/\s:@]+:[^@\s]+@|password=[^\s&;]+|^[^/\s:@]+:[^@\s]+@tcp\()`)
)

// AuditJob audits a compiled job. raw is the unexpanded file content; when
// given, credentials written literally into a storage DSN are reported.
// Values coming from ${VAR} references are not.
func (a *Auditor) AuditJob(job *config.Job, raw []byte) *Result {
	result := &Result{Valid: true, Issues: []Issue{}}

	if len(raw) > 0 {
		a.checkForHardcodedCredentials(string(raw), result)
	}

	for _, src := range job.Sources() {
		for _, seed := range src.Seeds {
			a.checkSeed(src.Name, seed, result)
		}
		a.checkCrawl(src, result)
	}

	sort.SliceStable(result.Issues, func(i, j int) bool {
		return result.Issues[i].Severity > result.Issues[j].Severity
	})
	a.logger.Debugf("security audit of %q: %d issues, risk score %d", job.Label(), len(result.Issues), result.RiskScore)
	return result
}

func (a *Auditor) checkForHardcodedCredentials(raw string, result *Result) {
	for _, m := range dsnLine.FindAllStringSubmatch(raw, -1) {
		value := strings.Trim(m[1], `"'`)
		if strings.Contains(value, "${") {
			continue
		}
		if dsnPassword.MatchString(value) {
			result.add(Issue{
				Type:        "hardcoded_credentials",
				Severity:    SeverityCritical,
				Message:     "storage DSN contains a literal password",
				Field:       "storage.dsn",
				Remediation: "Reference an environment variable, e.g. dsn: ${DATABASE_URL}",
			})
		}
	}
}

func (a *Auditor) checkSeed(source, seed string, result *Result) {
	field := fmt.Sprintf("sources[%s].seeds", source)

	if len(seed) > MaxURLLength {
		result.add(Issue{
			Type:     "url_too_long",
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("seed URL is %d characters long", len(seed)),
			Field:    field,
		})
	}

	u, err := url.Parse(seed)
	if err != nil {
		return
	}
	host := strings.ToLower(u.Hostname())

	if u.User != nil {
		result.add(Issue{
			Type:        "credentials_in_url",
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("seed %s carries user credentials", u.Redacted()),
			Field:       field,
			Remediation: "Remove credentials from seed URLs",
		})
	}

	if !IsSecureContext(u.Scheme, host) {
		result.add(Issue{
			Type:        "insecure_transport",
			Severity:    SeverityLow,
			Message:     fmt.Sprintf("seed %s is fetched over plain HTTP", u.Redacted()),
			Field:       field,
			Remediation: "Use https:// when the site supports it",
		})
	}

	if a.isDomainBlocked(host) {
		result.add(Issue{
			Type:     "blocked_domain",
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("seed host %s is blocked", host),
			Field:    field,
		})
	}
}

func (a *Auditor) checkCrawl(src config.SourceDefinition, result *Result) {
	field := fmt.Sprintf("sources[%s].crawl", src.Name)

	if !src.Crawl.RespectRobotsTxt {
		result.add(Issue{
			Type:        "robots_ignored",
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("source %s ignores robots.txt", src.Name),
			Field:       field + ".respect_robots_txt",
			Remediation: "Set respect_robots_txt: true unless the site owner agreed otherwise",
		})
	}
	if src.Crawl.Depth > 0 && src.Crawl.Delay <= 0 {
		result.add(Issue{
			Type:        "aggressive_crawl",
			Severity:    SeverityLow,
			Message:     fmt.Sprintf("source %s follows links with no delay between requests", src.Name),
			Field:       field + ".delay_seconds",
			Remediation: "Set delay_seconds to at least 1",
		})
	}
}

func (a *Auditor) isDomainBlocked(host string) bool {
	for _, d := range a.blockedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// IsSecureContext reports whether scheme and host form a secure origin:
// https, or plain http on a loopback host.
func IsSecureContext(scheme string, host string) bool {
	if scheme == "https" {
		return true
	}
	return scheme == "http" && (host == "localhost" || host == "127.0.0.1" || host == "::1")
}
