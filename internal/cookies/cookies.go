package cookies

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultDomains are the cookie domains that matter for the video host:
// the host itself plus its CDN and auth domains.
var DefaultDomains = []string{"youtube.com", "google.com", "googlevideo.com"}

const httpOnlyPrefix = "#HttpOnly_"

// ParseBrowserSpec splits a "browser[:profile]" spec into its parts.
func ParseBrowserSpec(value string) (browser, profile string) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return "", ""
	}
	if idx := strings.Index(raw, ":"); idx >= 0 {
		return strings.ToLower(strings.TrimSpace(raw[:idx])), strings.TrimSpace(raw[idx+1:])
	}
	return strings.ToLower(raw), ""
}

func normalizeDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	domain = strings.TrimPrefix(domain, httpOnlyPrefix)
	domain = strings.TrimLeft(domain, ".")
	return strings.ToLower(domain)
}

// DomainMatches reports whether a cookie domain belongs to one of the
// configured suffixes.
func DomainMatches(domain string, suffixes []string) bool {
	normalized := normalizeDomain(domain)
	for _, suffix := range suffixes {
		s := strings.ToLower(strings.TrimLeft(suffix, "."))
		if normalized == s || strings.HasSuffix(normalized, "."+s) {
			return true
		}
	}
	return false
}

// Entry is one row of a Netscape cookie-jar file.
type Entry struct {
	Domain string
	Expiry int64
	Raw    string
}

// ReadJar parses the tab-separated cookie-jar lines of a file, skipping
// comments and malformed rows.
func ReadJar(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") && !strings.HasPrefix(line, httpOnlyPrefix) {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 7 {
			continue
		}
		expiry, err := strconv.ParseInt(parts[4], 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Domain: parts[0], Expiry: expiry, Raw: line})
	}
	return entries, scanner.Err()
}

// IsExpired decides whether the credential artifact is usable: expired if
// the file is absent, older than maxAge (when non-zero), or when none of
// its domain-matching entries has expiry 0 ("never") or a future timestamp.
func IsExpired(path string, maxAge time.Duration, domains []string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	if maxAge > 0 && time.Since(info.ModTime()) > maxAge {
		return true
	}

	entries, err := ReadJar(path)
	if err != nil {
		return false
	}
	now := time.Now().Unix()
	for _, entry := range entries {
		if len(domains) > 0 && !DomainMatches(entry.Domain, domains) {
			continue
		}
		if entry.Expiry == 0 || entry.Expiry > now {
			return false
		}
	}
	return true
}

// FilterJar rewrites the jar keeping only entries whose domain matches one
// of the suffixes, and returns how many entries were kept. Header comments
// are preserved.
func FilterJar(path string, domains []string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var out strings.Builder
	kept := 0
	for _, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") && !strings.HasPrefix(trimmed, httpOnlyPrefix) {
			out.WriteString(line + "\n")
			continue
		}
		parts := strings.Split(trimmed, "\t")
		if len(parts) < 7 {
			continue
		}
		if len(domains) > 0 && !DomainMatches(parts[0], domains) {
			continue
		}
		out.WriteString(line + "\n")
		kept++
	}

	if err := os.WriteFile(path, []byte(out.String()), 0600); err != nil {
		return 0, err
	}
	return kept, nil
}

// RefreshResult reports the outcome of one refresh attempt.
type RefreshResult struct {
	Refreshed bool
	Strategy  string
	Err       error
}

func (r RefreshResult) String() string {
	if r.Refreshed {
		return fmt.Sprintf("refreshed via %s", r.Strategy)
	}
	if r.Err != nil {
		return fmt.Sprintf("refresh failed (%s): %v", r.Strategy, r.Err)
	}
	return "no refresh method configured"
}

func expandCommand(command, cookieFile, browser, profile string) string {
	return strings.NewReplacer(
		"{cookie_file}", cookieFile,
		"{cookie_path}", cookieFile,
		"{browser}", browser,
		"{profile}", profile,
	).Replace(command)
}
