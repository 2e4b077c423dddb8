package internaldefs

import (
	goBankAuth "github.com/MrEthical07/goBankAuth"
)

// CounterDef names one engine counter for export. Name is the flat
// Prometheus series. Family and Outcome place the counter in an OTel
// instrument keyed by an "outcome" attribute; an empty Outcome means the
// family has a single series.
type CounterDef struct {
	ID      goBankAuth.MetricID
	Name    string
	Help    string
	Family  string
	Outcome string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID     goBankAuth.MetricID
	Name   string
	Help   string
	Family string
}

const (
	FamilyLogin        = "gobankauth.login"
	FamilyAccount      = "gobankauth.account"
	FamilyCodes        = "gobankauth.verification.codes"
	FamilyReset        = "gobankauth.password.reset"
	FamilyChange       = "gobankauth.password.change"
	FamilyRehash       = "gobankauth.password.rehash"
	FamilySession      = "gobankauth.session"
	FamilyRateLimit    = "gobankauth.rate_limit.hits"
	FamilyLoginLatency = "gobankauth.login.duration"
)

// FamilyHelp describes each OTel instrument family.
var FamilyHelp = map[string]string{
	FamilyLogin:        "Login attempts by outcome.",
	FamilyAccount:      "Account lifecycle events by outcome.",
	FamilyCodes:        "Verification code events by outcome.",
	FamilyReset:        "Password reset events by outcome.",
	FamilyChange:       "Password change attempts by outcome.",
	FamilyRehash:       "Stored password hashes rehashed on login.",
	FamilySession:      "Session and refresh token events by outcome.",
	FamilyRateLimit:    "Requests denied by a rate limit.",
	FamilyLoginLatency: "Login latency in seconds, cumulative per bucket.",
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goBankAuth.MetricLoginSuccess, Name: "gobankauth_login_success_total", Help: "Successful logins.", Family: FamilyLogin, Outcome: "success"},
	{ID: goBankAuth.MetricLoginFailure, Name: "gobankauth_login_failure_total", Help: "Failed logins, unknown email and wrong password alike.", Family: FamilyLogin, Outcome: "failure"},
	{ID: goBankAuth.MetricLoginLocked, Name: "gobankauth_login_locked_total", Help: "Logins rejected because the account was locked.", Family: FamilyLogin, Outcome: "locked"},
	{ID: goBankAuth.MetricLoginRateLimited, Name: "gobankauth_login_rate_limited_total", Help: "Rate-limited login attempts.", Family: FamilyLogin, Outcome: "rate_limited"},
	{ID: goBankAuth.MetricAccountLocked, Name: "gobankauth_account_locked_total", Help: "Accounts locked by consecutive failures.", Family: FamilyAccount, Outcome: "locked"},
	{ID: goBankAuth.MetricRegisterSuccess, Name: "gobankauth_register_success_total", Help: "Accounts registered.", Family: FamilyAccount, Outcome: "registered"},
	{ID: goBankAuth.MetricRegisterDuplicate, Name: "gobankauth_register_duplicate_total", Help: "Registrations rejected for a taken email or phone.", Family: FamilyAccount, Outcome: "duplicate"},
	{ID: goBankAuth.MetricCodeIssued, Name: "gobankauth_code_issued_total", Help: "Verification codes issued and delivered.", Family: FamilyCodes, Outcome: "issued"},
	{ID: goBankAuth.MetricCodeDeliveryFailed, Name: "gobankauth_code_delivery_failed_total", Help: "Verification codes rolled back after delivery failure.", Family: FamilyCodes, Outcome: "delivery_failed"},
	{ID: goBankAuth.MetricCodeVerified, Name: "gobankauth_code_verified_total", Help: "Verification codes accepted.", Family: FamilyCodes, Outcome: "verified"},
	{ID: goBankAuth.MetricCodeInvalid, Name: "gobankauth_code_invalid_total", Help: "Wrong or unknown verification codes.", Family: FamilyCodes, Outcome: "invalid"},
	{ID: goBankAuth.MetricCodeExpired, Name: "gobankauth_code_expired_total", Help: "Verification attempts on expired codes.", Family: FamilyCodes, Outcome: "expired"},
	{ID: goBankAuth.MetricCodeExhausted, Name: "gobankauth_code_exhausted_total", Help: "Verification codes deleted at the attempt cap.", Family: FamilyCodes, Outcome: "exhausted"},
	{ID: goBankAuth.MetricPasswordResetRequest, Name: "gobankauth_password_reset_request_total", Help: "Forgot-password requests.", Family: FamilyReset, Outcome: "requested"},
	{ID: goBankAuth.MetricPasswordResetSuccess, Name: "gobankauth_password_reset_success_total", Help: "Successful password resets.", Family: FamilyReset, Outcome: "success"},
	{ID: goBankAuth.MetricPasswordResetFailure, Name: "gobankauth_password_reset_failure_total", Help: "Failed password resets.", Family: FamilyReset, Outcome: "failure"},
	{ID: goBankAuth.MetricPasswordChangeSuccess, Name: "gobankauth_password_change_success_total", Help: "Successful password changes.", Family: FamilyChange, Outcome: "success"},
	{ID: goBankAuth.MetricPasswordChangeInvalidOld, Name: "gobankauth_password_change_invalid_old_total", Help: "Password changes with a wrong current password.", Family: FamilyChange, Outcome: "invalid_current"},
	{ID: goBankAuth.MetricPasswordChangeReuseRejected, Name: "gobankauth_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse.", Family: FamilyChange, Outcome: "reuse_rejected"},
	{ID: goBankAuth.MetricPasswordHashUpgraded, Name: "gobankauth_password_hash_upgraded_total", Help: "Stored password hashes rehashed on login.", Family: FamilyRehash},
	{ID: goBankAuth.MetricSessionCreated, Name: "gobankauth_session_created_total", Help: "Token pairs issued at login.", Family: FamilySession, Outcome: "created"},
	{ID: goBankAuth.MetricRefreshSuccess, Name: "gobankauth_refresh_success_total", Help: "Successful refresh rotations.", Family: FamilySession, Outcome: "refreshed"},
	{ID: goBankAuth.MetricRefreshFailure, Name: "gobankauth_refresh_failure_total", Help: "Rejected refresh tokens.", Family: FamilySession, Outcome: "refresh_rejected"},
	{ID: goBankAuth.MetricLogout, Name: "gobankauth_logout_total", Help: "Single-token logouts.", Family: FamilySession, Outcome: "logout"},
	{ID: goBankAuth.MetricLogoutAll, Name: "gobankauth_logout_all_total", Help: "Revoke-all operations.", Family: FamilySession, Outcome: "logout_all"},
	{ID: goBankAuth.MetricRateLimitHit, Name: "gobankauth_rate_limit_hit_total", Help: "Requests denied by a rate limit.", Family: FamilyRateLimit},
	{ID: goBankAuth.MetricAccountDeleted, Name: "gobankauth_account_deleted_total", Help: "Accounts deleted.", Family: FamilyAccount, Outcome: "deleted"},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goBankAuth.MetricLoginLatency, Name: "gobankauth_login_latency_seconds", Help: "Login latency.", Family: FamilyLoginLatency},
}

// HistogramUpperBounds are the bucket bounds in seconds, without +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf last, for exporters that
// publish buckets as separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
