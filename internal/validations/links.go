package validations

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
)

const MaxURLLength = 2048

var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"ftp":   true,
}

// IsURLValid accepts absolute http, https and ftp URLs with a host.
func IsURLValid(link string) bool {
	if link == "" || len(link) > MaxURLLength {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Host != "" && allowedSchemes[u.Scheme]
}

// ExtractHostname returns the host of link, or link itself when it does not parse.
func ExtractHostname(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link // fallback to original link if parsing fails
	}
	return u.Host
}

// URLHash is the MD5 hex digest of the exact URL string. Sync clients use it
// as a stable bookmark identifier.
func URLHash(link string) string {
	sum := md5.Sum([]byte(link))
	return hex.EncodeToString(sum[:])
}
