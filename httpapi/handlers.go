package httpapi

import (
	"context"
	"net/http"
	"time"

	goBankAuth "github.com/MrEthical07/goBankAuth"
	"github.com/go-chi/chi/v5"
)

type registerRequest struct {
	FullName    string `json:"fullName" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,email"`
	PhoneNumber string `json:"phoneNumber" validate:"required,min=7,max=32"`
	Password    string `json:"password" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type sendVerificationRequest struct {
	UserID      string `json:"userId" validate:"omitempty,uuid"`
	Email       string `json:"email" validate:"omitempty,email"`
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,min=7,max=32"`
	Type        string `json:"type" validate:"required,oneof=email phone password_reset"`
}

type verifyCodeRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
	Code   string `json:"code" validate:"required,numeric,min=4,max=10"`
	Type   string `json:"type" validate:"required,oneof=email phone password_reset"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,numeric,min=4,max=10"`
	NewPassword string `json:"newPassword" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

type deleteAccountRequest struct {
	Password        string `json:"password" validate:"required"`
	ConfirmDeletion string `json:"confirmDeletion" validate:"required"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.engine.Register(r.Context(), goBankAuth.RegisterRequest{
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "Account created successfully. Please verify your email and phone number", res)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}

	sess, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Login successful", sess)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}

	sess, err := s.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Token refreshed", sess)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.Logout(r.Context(), principal.UserID, req.RefreshToken); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

func (s *Server) sendVerification(w http.ResponseWriter, r *http.Request) {
	var req sendVerificationRequest
	if !s.decode(w, r, &req) {
		return
	}

	err := s.engine.SendVerification(r.Context(), goBankAuth.SendVerificationRequest{
		UserID: req.UserID,
		Email:  req.Email,
		Phone:  req.PhoneNumber,
		Type:   goBankAuth.VerificationType(req.Type),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "If the account exists, a verification code has been sent", nil)
}

func (s *Server) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if !s.decode(w, r, &req) {
		return
	}

	t := goBankAuth.VerificationType(req.Type)
	if _, err := s.engine.VerifyCode(r.Context(), req.UserID, t, req.Code); err != nil {
		s.writeError(w, r, err)
		return
	}

	message := "Email verified successfully"
	if t == goBankAuth.VerificationPhone {
		message = "Phone number verified successfully"
	}
	writeSuccess(w, http.StatusOK, message, map[string]any{
		"type":       t,
		"verifiedAt": s.now().UTC(),
	})
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.ForgotPassword(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "If the email is registered, a password reset code has been sent", nil)
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Password has been reset. Please log in with your new password", nil)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	var req changePasswordRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.ChangePassword(r.Context(), principal.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Password changed successfully", nil)
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	var req deleteAccountRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.DeleteAccount(r.Context(), principal.UserID, req.Password, req.ConfirmDeletion); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Account deleted successfully", nil)
}

func (s *Server) verificationStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	status, err := s.engine.VerificationStatus(r.Context(), *principal, chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Verification status retrieved", status)
}

func (s *Server) clearPending(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	n, err := s.engine.ClearPendingVerifications(r.Context(), *principal, chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Pending verifications cleared", map[string]int{"cleared": n})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.checks))
	healthy := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = "down"
			healthy = false
			continue
		}
		checks[name] = "up"
	}

	data := map[string]any{
		"timestamp": s.now().UTC(),
		"checks":    checks,
	}
	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, Response{Success: false, Message: "Dependency unavailable", Data: data})
		return
	}
	writeSuccess(w, http.StatusOK, "Auth API is running", data)
}
