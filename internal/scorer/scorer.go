// Package scorer classifies URLs with a weighted set of independent phishing
// signals. Scoring is a pure function: identical input always produces the
// identical score and signal set, and malformed input scores zero rather
// than erroring.
package scorer

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

// Signal names as they appear in results and alert JSON.
const (
	SignalHomograph           = "homograph"
	SignalTyposquat           = "typosquat"
	SignalSuspiciousTLD       = "suspicious_tld"
	SignalIPAddress           = "ip_address"
	SignalExcessiveSubdomains = "excessive_subdomains"
)

// Signal weights. Design constants, not tunable per call.
const (
	weightHomograph           = 0.30
	weightTyposquat           = 0.25
	weightSuspiciousTLD       = 0.20
	weightIPAddress           = 0.25
	weightExcessiveSubdomains = 0.15
)

// Typosquatting fires when the edit distance to a popular domain name is in
// [typosquatMinDistance, typosquatMaxDistance].
const (
	typosquatMinDistance = 1
	typosquatMaxDistance = 3
)

// ThreatLevel buckets a total score.
type ThreatLevel string

const (
	LevelSafe       ThreatLevel = "safe"
	LevelSuspicious ThreatLevel = "suspicious"
	LevelDangerous  ThreatLevel = "dangerous"
)

// Score thresholds.
const (
	suspiciousThreshold = 0.3
	dangerousThreshold  = 0.6
)

// Result is the outcome of scoring one URL.
type Result struct {
	Total         float64            `json:"total"`
	Signals       map[string]float64 `json:"signals"`
	Level         ThreatLevel        `json:"level"`
	ClosestDomain string             `json:"closestDomain,omitempty"`
	EditDistance  int                `json:"editDistance,omitempty"`
	ImitatedBrand string             `json:"imitatedBrand,omitempty"`
	Explanation   string             `json:"explanation"`
}

func levelFor(total float64) ThreatLevel {
	switch {
	case total >= dangerousThreshold:
		return LevelDangerous
	case total >= suspiciousThreshold:
		return LevelSuspicious
	default:
		return LevelSafe
	}
}

// Score analyzes a URL and returns the additive signal breakdown, capped at
// 1.0. Non-HTTP(S) schemes, localhost, and unparseable URLs score exactly
// 0.0 and are not analyzed further. HTTPS never suppresses a signal.
func Score(rawURL string) Result {
	result := Result{Signals: map[string]float64{}, Level: LevelSafe}

	host, ok := analyzableHost(rawURL)
	if !ok {
		result.Explanation = "not analyzed"
		return result
	}

	var reasons []string

	if ip := parseIPHost(host); ip != nil {
		// Raw IP hosts get the IP signal and nothing else; the domain
		// heuristics below are meaningless without a name.
		result.Signals[SignalIPAddress] = weightIPAddress
		reasons = append(reasons, fmt.Sprintf("raw IP address host %s", ip))
		return finish(result, reasons)
	}

	name, tld, subLabels := splitDomain(host)
	if name == "" {
		result.Explanation = "not analyzed"
		return result
	}

	// 1. Homograph: mixed scripts forming a confusable rendering of a
	// popular domain. Single-script domains are never flagged here.
	if mixesScripts(name) {
		if imitated, ok := confusablePopularDomain(name, tld); ok {
			result.Signals[SignalHomograph] = weightHomograph
			reasons = append(reasons, fmt.Sprintf("mixed-script lookalike of %s", imitated))
		}
	}

	// 2. Typosquatting: small edit distance to a popular domain name.
	closest, distance := closestPopularDomain(name)
	result.ClosestDomain = closest
	result.EditDistance = distance
	if distance >= typosquatMinDistance && distance <= typosquatMaxDistance {
		result.Signals[SignalTyposquat] = weightTyposquat
		reasons = append(reasons, fmt.Sprintf("similar to %s (edit distance %d)", closest, distance))
	}

	// 3. Suspicious TLD.
	if isSuspiciousTLD(tld) {
		result.Signals[SignalSuspiciousTLD] = weightSuspiciousTLD
		reasons = append(reasons, fmt.Sprintf("suspicious TLD .%s", tld))
	}

	// 4. Excessive subdomains impersonating a brand.
	if len(subLabels) >= 3 {
		for _, label := range subLabels {
			if brandNames[strings.ToLower(label)] {
				result.Signals[SignalExcessiveSubdomains] = weightExcessiveSubdomains
				result.ImitatedBrand = strings.ToLower(label)
				reasons = append(reasons, fmt.Sprintf("brand %q buried under %d subdomain labels",
					result.ImitatedBrand, len(subLabels)))
				break
			}
		}
	}

	return finish(result, reasons)
}

func finish(result Result, reasons []string) Result {
	for _, w := range result.Signals {
		result.Total += w
	}
	if result.Total > 1.0 {
		result.Total = 1.0
	}
	result.Level = levelFor(result.Total)
	if len(reasons) == 0 {
		result.Explanation = "no phishing indicators detected"
	} else {
		result.Explanation = strings.Join(reasons, "; ")
	}
	return result
}

// analyzableHost extracts the host if the URL is in scope for analysis.
func analyzableHost(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || host == "localhost" {
		return "", false
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return "", false
	}
	// Punycode labels are decoded so homograph analysis sees the rendered
	// form the user sees.
	if decoded, err := idna.Lookup.ToUnicode(host); err == nil && decoded != "" {
		host = decoded
	}
	return host, true
}

// parseIPHost returns the IP if host is an IPv4 or IPv6 literal.
func parseIPHost(host string) net.IP {
	return net.ParseIP(strings.Trim(host, "[]"))
}

// splitDomain breaks a host into the registrable name, its TLD, and any
// subdomain labels before the registrable domain. "www." prefixes do not
// count as subdomain labels.
func splitDomain(host string) (name, tld string, subLabels []string) {
	host = strings.TrimSuffix(host, ".")
	host = strings.TrimPrefix(host, "www.")

	labels := strings.Split(host, ".")
	switch len(labels) {
	case 0:
		return "", "", nil
	case 1:
		return labels[0], "", nil
	default:
		tld = labels[len(labels)-1]
		name = labels[len(labels)-2]
		subLabels = labels[:len(labels)-2]
		return name, tld, subLabels
	}
}

// closestPopularDomain finds the popular domain whose name portion has the
// smallest edit distance to name, returning the full domain and distance.
func closestPopularDomain(name string) (string, int) {
	closest := ""
	best := -1
	for i, popularName := range popularNames {
		d := levenshtein(name, popularName)
		if best < 0 || d < best {
			best = d
			closest = popularDomains[i]
		}
	}
	return closest, best
}

// levenshtein computes edit distance over runes with a two-row table.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// AlertJSON renders the opaque alert blob stored alongside threat records.
func (r Result) AlertJSON(rawURL string) string {
	signals := make([]string, 0, len(r.Signals))
	for name := range r.Signals {
		signals = append(signals, name)
	}
	sort.Strings(signals)

	alert := map[string]interface{}{
		"type":           "phishing_url_detected",
		"url":            rawURL,
		"phishing_score": r.Total,
		"threat_level":   string(r.Level),
		"signals":        r.Signals,
		"triggered":      signals,
		"explanation":    r.Explanation,
	}
	if r.ClosestDomain != "" {
		alert["closest_legitimate_domain"] = r.ClosestDomain
		alert["edit_distance"] = r.EditDistance
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return "{}"
	}
	return string(data)
}
