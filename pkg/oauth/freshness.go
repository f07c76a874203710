package oauth

import "time"

// FreshnessMargin is the minimum remaining validity for a cached credential
// to be handed out. It absorbs clock skew and the latency of the request the
// token is about to be used for.
const FreshnessMargin = 60 * time.Second

// IsFresh reports whether cred can be used at now without refreshing.
// A credential is fresh iff it has at least FreshnessMargin of validity left;
// the boundary itself counts as fresh. A nil credential is never fresh.
func IsFresh(cred *Credential, now time.Time) bool {
	if cred == nil || cred.AccessToken == "" {
		return false
	}
	expiresOnMs := int64(cred.ExpiresOn) * 1000
	return now.UnixMilli()-expiresOnMs <= -FreshnessMargin.Milliseconds()
}
