// Package httpapi exposes a goBankAuth.Engine over JSON HTTP with chi.
//
// Every response uses the envelope {success, message, data?}. Engine errors
// are mapped by goBankAuth.KindOf; internal failures surface as a generic
// message and are logged. Flows that must not reveal whether an account
// exists (forgot-password, send-verification, login) answer identically
// for known and unknown accounts.
//
// Routes are mounted under /api:
//
//	POST   /api/auth/register
//	POST   /api/auth/login
//	POST   /api/auth/refresh
//	POST   /api/auth/logout                  (bearer)
//	POST   /api/auth/forgot-password
//	POST   /api/auth/reset-password
//	POST   /api/verification/send-verification
//	POST   /api/verification/verify-code
//	GET    /api/verification/status/{userId}  (bearer, self or admin)
//	DELETE /api/verification/clear/{userId}   (bearer, self or admin)
//	PUT    /api/user/change-password          (bearer)
//	DELETE /api/user/account                  (bearer)
//	GET    /api/health
//	GET    /metrics
package httpapi
