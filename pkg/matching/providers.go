package matching

import "strings"

// publicProviders are mailbox providers whose domain says nothing about an employer
var publicProviders = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"yahoo.com":      true,
	"yahoo.it":       true,
	"hotmail.com":    true,
	"hotmail.it":     true,
	"outlook.com":    true,
	"icloud.com":     true,
	"me.com":         true,
	"live.com":       true,
	"live.it":        true,
	"msn.com":        true,
	"aol.com":        true,
	"mail.com":       true,
	"protonmail.com": true,
	"proton.me":      true,
	"libero.it":      true,
	"virgilio.it":    true,
	"tiscali.it":     true,
	"alice.it":       true,
	"tin.it":         true,
	"gmx.de":         true,
	"web.de":         true,
	"orange.fr":      true,
	"free.fr":        true,
	"wanadoo.fr":     true,
}

// IsPublicProvider reports whether the domain belongs to a public mailbox provider
func IsPublicProvider(domain string) bool {
	return publicProviders[strings.ToLower(strings.TrimSpace(domain))]
}
