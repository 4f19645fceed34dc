package wechat

import "strings"

// Identity is the canonical shape a raw WeChat profile normalizes to.
// ExternalID is the durable identity key: unionid when present (stable
// across apps under the same open-platform account), openid otherwise.
type Identity struct {
	ExternalID    string
	Email         string
	Name          string
	Image         string
	EmailVerified bool
}

// NormalizeProfile maps a raw profile into an Identity. Pure mapping
// with defaults; it cannot fail. fallbackOpenID is the openid from the
// token exchange, used when the profile carries no identifier of its
// own. The synthetic email is lowercased so lookups are
// case-insensitive regardless of how the provider cases identifiers.
func NormalizeProfile(p *Profile, fallbackOpenID, emailDomain string) Identity {
	id := p.UnionID
	if id == "" {
		id = p.OpenID
	}
	if id == "" {
		id = fallbackOpenID
	}

	return Identity{
		ExternalID:    id,
		Email:         strings.ToLower(id + "@" + emailDomain),
		Name:          p.Nickname,
		Image:         p.HeadImgURL,
		EmailVerified: true, // no real email exists to verify
	}
}
