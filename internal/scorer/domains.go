package scorer

import "strings"

// Popular domains that phishers commonly impersonate. Typosquatting and
// homograph skeletons are checked against this set.
var popularDomains = []string{
	// Financial
	"paypal.com", "chase.com", "bankofamerica.com", "wellsfargo.com",
	"citibank.com", "capitalone.com", "americanexpress.com",
	// Tech giants
	"google.com", "apple.com", "microsoft.com", "amazon.com",
	"facebook.com", "instagram.com", "twitter.com", "linkedin.com",
	"netflix.com", "spotify.com", "dropbox.com",
	// Email providers
	"gmail.com", "outlook.com", "yahoo.com", "protonmail.com",
	// E-commerce
	"ebay.com", "etsy.com", "shopify.com", "walmart.com",
	// Crypto
	"coinbase.com", "binance.com", "kraken.com", "blockchain.com",
	// Government and shipping
	"irs.gov", "usps.com", "fedex.com", "ups.com",
	// Cloud/Dev
	"github.com", "gitlab.com", "docker.com", "cloudflare.com",
}

// Suspicious TLDs commonly used for phishing (free or no verification).
var suspiciousTLDs = map[string]bool{
	// Free TLDs (Freenom)
	"tk": true, "ml": true, "ga": true, "cf": true, "gq": true,
	// Other high-abuse
	"top": true, "xyz": true, "club": true, "work": true, "click": true,
	"link": true, "download": true, "stream": true, "online": true,
	"site": true, "website": true,
}

// popularNames is the name portion of popularDomains ("paypal.com" ->
// "paypal"), used for typosquat distance and brand-label checks.
var popularNames = func() []string {
	names := make([]string, 0, len(popularDomains))
	for _, d := range popularDomains {
		if i := strings.LastIndexByte(d, '.'); i > 0 {
			names = append(names, d[:i])
		} else {
			names = append(names, d)
		}
	}
	return names
}()

var brandNames = func() map[string]bool {
	m := make(map[string]bool, len(popularNames))
	for _, n := range popularNames {
		m[n] = true
	}
	return m
}()

func isSuspiciousTLD(tld string) bool {
	return suspiciousTLDs[strings.ToLower(tld)]
}
