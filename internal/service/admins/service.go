package admins

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"tiketloka-storefront/internal/backend"
	"tiketloka-storefront/internal/domain"
	"tiketloka-storefront/internal/guard"
)

const passwordMin = 8

type adminAPI interface {
	Admins(ctx context.Context, token string) ([]domain.Profile, error)
	CreateAdmin(ctx context.Context, token string, in backend.AdminInput) error
	UpdateAdmin(ctx context.Context, token string, id int64, in backend.AdminInput) error
	DeleteAdmin(ctx context.Context, token string, id int64) error
}

// IdentitySource yields the resolved session identity.
type IdentitySource interface {
	Identity() domain.Identity
}

// Service manages admin accounts on behalf of the owner.
type Service struct {
	api      adminAPI
	identity IdentitySource
}

// New builds a Service.
func New(api adminAPI, identity IdentitySource) *Service {
	return &Service{api: api, identity: identity}
}

// Input is an admin account form.
type Input struct {
	Name        string
	Email       string
	PhoneNumber string
	Password    string
}

// List returns the admin accounts.
func (s *Service) List(ctx context.Context) ([]domain.Profile, error) {
	token, err := s.authorize()
	if err != nil {
		return nil, err
	}
	admins, err := s.api.Admins(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// Create adds an admin. Every field is required.
func (s *Service) Create(ctx context.Context, in Input) error {
	token, err := s.authorize()
	if err != nil {
		return err
	}
	body, err := validate(in, true)
	if err != nil {
		return err
	}
	if err := s.api.CreateAdmin(ctx, token, body); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	return nil
}

// Update edits an admin. An empty password keeps the current one.
func (s *Service) Update(ctx context.Context, id int64, in Input) error {
	token, err := s.authorize()
	if err != nil {
		return err
	}
	if id <= 0 {
		return domain.ErrNotFound
	}
	body, err := validate(in, false)
	if err != nil {
		return err
	}
	if err := s.api.UpdateAdmin(ctx, token, id, body); err != nil {
		return fmt.Errorf("update admin %d: %w", id, err)
	}
	return nil
}

// Remove deletes an admin.
func (s *Service) Remove(ctx context.Context, id int64) error {
	token, err := s.authorize()
	if err != nil {
		return err
	}
	if id <= 0 {
		return domain.ErrNotFound
	}
	if err := s.api.DeleteAdmin(ctx, token, id); err != nil {
		return fmt.Errorf("remove admin %d: %w", id, err)
	}
	return nil
}

// authorize is checked on every call against the current identity, so a
// role change or logout takes effect immediately.
func (s *Service) authorize() (string, error) {
	id := s.identity.Identity()
	if err := guard.Authorize(id, guard.ManageAdmins); err != nil {
		return "", err
	}
	return id.Token, nil
}

func validate(in Input, creating bool) (backend.AdminInput, error) {
	out := backend.AdminInput{
		Name:        strings.TrimSpace(in.Name),
		Email:       strings.ToLower(strings.TrimSpace(in.Email)),
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
		Password:    in.Password,
	}
	fields := map[string][]string{}
	if out.Name == "" {
		fields["name"] = append(fields["name"], "name required")
	}
	if out.Email == "" {
		fields["email"] = append(fields["email"], "email required")
	} else if _, err := mail.ParseAddress(out.Email); err != nil {
		fields["email"] = append(fields["email"], "email is invalid")
	}
	if creating && out.PhoneNumber == "" {
		fields["phone_number"] = append(fields["phone_number"], "phone number required")
	}
	if creating || out.Password != "" {
		if len(strings.TrimSpace(out.Password)) < passwordMin {
			fields["password"] = append(fields["password"], fmt.Sprintf("password must be at least %d characters", passwordMin))
		}
	}
	if len(fields) > 0 {
		return backend.AdminInput{}, &domain.ValidationError{Message: "admin form is incomplete", Fields: fields}
	}
	return out, nil
}
