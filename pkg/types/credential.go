package types

// PoolVersion is the only credential-file version this pool accepts.
// Loaders refuse any other value outright.
const PoolVersion = 2

// OAuthCredentials is one account's upstream-LLM credential set, as
// produced by the (out of scope) OAuth browser flow.
type OAuthCredentials struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresAt    float64 `json:"expires_at"` // unix seconds
	AccountUUID  string  `json:"account_uuid"`
}

// OAuthAccount pairs credentials with a priority; 0 is primary.
type OAuthAccount struct {
	Credentials OAuthCredentials `json:"credentials"`
	Priority    int              `json:"priority"`
}

// RateLimitInfo tracks one account's backoff window.
type RateLimitInfo struct {
	UntilEpoch   int64 `json:"until_epoch"`
	RetryAfterS  int   `json:"retry_after_s"`
}

// PoolFile is the plaintext shape of the credential pool before
// encryption and after decryption; version 2 of the on-disk format.
type PoolFile struct {
	Version     int                      `json:"version"`
	Accounts    []OAuthAccount           `json:"accounts"`
	RateLimits  map[string]RateLimitInfo `json:"rate_limits"`
}

// AccountInfo is a derived, human-facing view of one pool account,
// grounded on the original pool's UI-facing AccountInfo helper.
type AccountInfo struct {
	Priority              int     `json:"priority"`
	AccountUUID           string  `json:"account_uuid"`
	IsRateLimited         bool    `json:"is_rate_limited"`
	SecondsUntilAvailable int     `json:"seconds_until_available"`
	ExpiresAt             float64 `json:"expires_at"`
	ExpiresSoon           bool    `json:"expires_soon"`
}

// StatusText mirrors the original pool's get_status_text().
func (a AccountInfo) StatusText() string {
	switch {
	case a.IsRateLimited:
		return "Rate Limited"
	case a.ExpiresSoon:
		return "Expiring Soon"
	default:
		return "Active"
	}
}
