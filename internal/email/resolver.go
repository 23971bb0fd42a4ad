package email

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

const defaultIMAPPort = 993

// Common IMAP servers for popular email providers
var knownIMAPServers = map[string]string{
	"qq.com":         "imap.qq.com",
	"foxmail.com":    "imap.qq.com",
	"163.com":        "imap.163.com",
	"126.com":        "imap.126.com",
	"yeah.net":       "imap.yeah.net",
	"sina.com":       "imap.sina.com",
	"aliyun.com":     "imap.aliyun.com",
	"gmail.com":      "imap.gmail.com",
	"googlemail.com": "imap.gmail.com",
	"outlook.com":    "outlook.office365.com",
	"hotmail.com":    "outlook.office365.com",
	"live.com":       "outlook.office365.com",
	"yahoo.com":      "imap.mail.yahoo.com",
	"yandex.ru":      "imap.yandex.ru",
	"yandex.com":     "imap.yandex.com",
	"mail.ru":        "imap.mail.ru",
	"icloud.com":     "imap.mail.me.com",
	"me.com":         "imap.mail.me.com",
	"aol.com":        "imap.aol.com",
	"zoho.com":       "imap.zoho.com",
	"fastmail.com":   "imap.fastmail.com",
	"gmx.com":        "imap.gmx.com",
	"web.de":         "imap.web.de",
}

// Resolver determines the IMAP server of an address
type Resolver struct {
	// probe reports whether host accepts TCP connections on the IMAP port
	probe    func(ctx context.Context, host string) bool
	lookupMX func(ctx context.Context, domain string) ([]*net.MX, error)
}

// NewResolver creates a resolver that probes candidate hosts over the network
func NewResolver() *Resolver {
	return &Resolver{
		probe:    probeIMAPServer,
		lookupMX: net.DefaultResolver.LookupMX,
	}
}

// Resolve returns the IMAP host and port for address
func (r *Resolver) Resolve(ctx context.Context, address string) (string, int, error) {
	domain := DomainOf(address)
	if domain == "" {
		return "", 0, fmt.Errorf("invalid email format")
	}

	if host, ok := knownIMAPServers[domain]; ok {
		return host, defaultIMAPPort, nil
	}

	for _, host := range []string{"imap." + domain, "mail." + domain, domain} {
		if r.probe(ctx, host) {
			return host, defaultIMAPPort, nil
		}
	}

	if host, err := r.resolveViaMX(ctx, domain); err == nil {
		return host, defaultIMAPPort, nil
	}

	return "imap." + domain, defaultIMAPPort, nil
}

// resolveViaMX derives an IMAP host from the primary MX record,
// e.g. mx.example.com -> imap.example.com
func (r *Resolver) resolveViaMX(ctx context.Context, domain string) (string, error) {
	records, err := r.lookupMX(ctx, domain)
	if err != nil || len(records) == 0 {
		return "", fmt.Errorf("no MX records found")
	}

	mxHost := strings.TrimSuffix(records[0].Host, ".")
	parts := strings.SplitN(mxHost, ".", 2)
	if len(parts) == 2 {
		for _, host := range []string{"imap." + parts[1], "mail." + parts[1]} {
			if r.probe(ctx, host) {
				return host, nil
			}
		}
	}

	return "", fmt.Errorf("could not determine IMAP server")
}

func probeIMAPServer(ctx context.Context, host string) bool {
	dialer := &net.Dialer{Timeout: 3 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, fmt.Sprint(defaultIMAPPort)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// DomainOf extracts the lower-cased domain of an address
func DomainOf(address string) string {
	parts := strings.Split(address, "@")
	if len(parts) != 2 || parts[0] == "" {
		return ""
	}
	return strings.ToLower(parts[1])
}
