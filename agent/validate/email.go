package validate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/badoux/checkmail"
)

var (
	ErrEmailSyntax        = errors.New("malformed email address")
	ErrEmailMirror        = errors.New("email local part equals its domain")
	ErrEmailUndeliverable = errors.New("email domain does not accept mail")
)

// DomainTypoError flags a domain that looks like a misspelt large provider.
type DomainTypoError struct {
	Domain     string
	Suggestion string
}

func (e *DomainTypoError) Error() string {
	return fmt.Sprintf("email domain %q looks like a typo of %q", e.Domain, e.Suggestion)
}

// Resolver is the subset of *net.Resolver used for deliverability checks.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

var DefaultProviderDomains = []string{"gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "aol.com"}

// typoPercent is the similarity above which a non-identical domain counts as a typo.
const typoPercent = 85

type EmailValidator struct {
	resolver  Resolver
	providers []string
}

// NewEmailValidator checks deliverability through resolver. A nil resolver skips DNS.
func NewEmailValidator(resolver Resolver) *EmailValidator {
	return &EmailValidator{
		resolver:  resolver,
		providers: DefaultProviderDomains,
	}
}

// Validate returns the normalized address (domain lower-cased) or a typed rejection.
func (v *EmailValidator) Validate(ctx context.Context, raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	if err := checkmail.ValidateFormat(addr); err != nil {
		return "", ErrEmailSyntax
	}

	at := strings.LastIndex(addr, "@")
	local, domain := addr[:at], strings.ToLower(addr[at+1:])
	label, _, _ := strings.Cut(domain, ".")
	if strings.EqualFold(local, label) {
		return "", ErrEmailMirror
	}

	for _, provider := range v.providers {
		if domain == provider || strings.Count(domain, ".") != strings.Count(provider, ".") {
			continue
		}
		if similar(domain, provider) {
			return "", &DomainTypoError{Domain: domain, Suggestion: provider}
		}
	}

	if v.resolver != nil {
		if err := v.deliverable(ctx, domain); err != nil {
			return "", err
		}
	}

	return local + "@" + domain, nil
}

func (v *EmailValidator) deliverable(ctx context.Context, domain string) error {
	mx, err := v.resolver.LookupMX(ctx, domain)
	if err == nil && len(mx) > 0 {
		return nil
	}
	// RFC 5321 implicit MX: a bare A/AAAA record also receives mail.
	hosts, err := v.resolver.LookupHost(ctx, domain)
	if err == nil && len(hosts) > 0 {
		return nil
	}
	return ErrEmailUndeliverable
}

// similar compares (len(a)+len(b)-dist)/(len(a)+len(b)) against typoPercent in integers.
func similar(a, b string) bool {
	total := len(a) + len(b)
	if total == 0 {
		return false
	}
	dist := levenshtein.ComputeDistance(a, b)
	return (total-dist)*100 > typoPercent*total
}
