package session

import (
	"context"
	"fmt"
	"strings"

	"tiketloka-storefront/internal/backend"
	"tiketloka-storefront/internal/domain"
)

const passwordMin = 8

type accountAPI interface {
	Login(ctx context.Context, email, password string) (backend.AuthResult, error)
	Register(ctx context.Context, in backend.RegisterInput) (backend.AuthResult, error)
	OAuthCallback(ctx context.Context, provider, code string) (backend.AuthResult, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, in backend.ResetPasswordInput) error
}

// Accounts runs the credential flows that end in a Manager login.
type Accounts struct {
	api     accountAPI
	session *Manager
}

// NewAccounts wires the account flows to a session manager.
func NewAccounts(api accountAPI, session *Manager) *Accounts {
	return &Accounts{api: api, session: session}
}

// SignupInput captures the registration form.
type SignupInput struct {
	Name                 string
	Email                string
	PhoneNumber          string
	Password             string
	PasswordConfirmation string
}

// Login exchanges credentials for a session.
func (a *Accounts) Login(ctx context.Context, email, password string) (domain.Identity, error) {
	email = normalizeEmail(email)
	v := newValidation("email and password are required")
	if email == "" {
		v.add("email", "email required")
	}
	if strings.TrimSpace(password) == "" {
		v.add("password", "password required")
	}
	if err := v.err(); err != nil {
		return domain.Identity{}, err
	}
	res, err := a.api.Login(ctx, email, password)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("login: %w", err)
	}
	return a.adopt(ctx, res)
}

// Signup registers an account and signs it in.
func (a *Accounts) Signup(ctx context.Context, in SignupInput) (domain.Identity, error) {
	in.Email = normalizeEmail(in.Email)
	v := newValidation("registration form is invalid")
	if strings.TrimSpace(in.Name) == "" {
		v.add("name", "name required")
	}
	if in.Email == "" {
		v.add("email", "email required")
	} else if !strings.Contains(in.Email, "@") {
		v.add("email", "email is not valid")
	}
	if strings.TrimSpace(in.PhoneNumber) == "" {
		v.add("phone_number", "phone number required")
	}
	validatePassword(v, in.Password, in.PasswordConfirmation)
	if err := v.err(); err != nil {
		return domain.Identity{}, err
	}

	res, err := a.api.Register(ctx, backend.RegisterInput{
		Name:                 strings.TrimSpace(in.Name),
		Email:                in.Email,
		PhoneNumber:          strings.TrimSpace(in.PhoneNumber),
		Password:             in.Password,
		PasswordConfirmation: in.PasswordConfirmation,
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("register: %w", err)
	}
	return a.adopt(ctx, res)
}

// CompleteOAuth finishes an identity-provider login with the code handed
// back to the storefront.
func (a *Accounts) CompleteOAuth(ctx context.Context, provider, code string) (domain.Identity, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	code = strings.TrimSpace(code)
	if provider == "" || code == "" {
		return domain.Identity{}, domain.NewValidationError("provider and code are required")
	}
	res, err := a.api.OAuthCallback(ctx, provider, code)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("oauth %s: %w", provider, err)
	}
	return a.adopt(ctx, res)
}

// ForgotPassword requests a reset mail.
func (a *Accounts) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return &domain.ValidationError{Message: "email required", Fields: map[string][]string{"email": {"email required"}}}
	}
	if err := a.api.ForgotPassword(ctx, email); err != nil {
		return fmt.Errorf("forgot password: %w", err)
	}
	return nil
}

// ResetPassword sets a new password with a mailed token. It does not sign
// the user in.
func (a *Accounts) ResetPassword(ctx context.Context, token, email, password, confirmation string) error {
	email = normalizeEmail(email)
	v := newValidation("reset form is invalid")
	if strings.TrimSpace(token) == "" {
		v.add("token", "reset token required")
	}
	if email == "" {
		v.add("email", "email required")
	}
	validatePassword(v, password, confirmation)
	if err := v.err(); err != nil {
		return err
	}
	err := a.api.ResetPassword(ctx, backend.ResetPasswordInput{
		Token:                strings.TrimSpace(token),
		Email:                email,
		Password:             password,
		PasswordConfirmation: confirmation,
	})
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

func (a *Accounts) adopt(ctx context.Context, res backend.AuthResult) (domain.Identity, error) {
	if err := a.session.Login(ctx, res.Token, res.User); err != nil {
		return a.session.Identity(), err
	}
	return a.session.Identity(), nil
}

type validation struct {
	message string
	fields  map[string][]string
}

func newValidation(message string) *validation {
	return &validation{message: message}
}

func (v *validation) add(field, msg string) {
	if v.fields == nil {
		v.fields = make(map[string][]string)
	}
	v.fields[field] = append(v.fields[field], msg)
}

func (v *validation) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &domain.ValidationError{Message: v.message, Fields: v.fields}
}

func validatePassword(v *validation, password, confirmation string) {
	if len(strings.TrimSpace(password)) < passwordMin {
		v.add("password", fmt.Sprintf("password must be at least %d characters", passwordMin))
	}
	if password != confirmation {
		v.add("password_confirmation", "password confirmation does not match")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
