package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"tiketloka-storefront/internal/domain"
)

const adminsPath = "/api/owner/admins"

// AdminInput is the create/update form for an admin account. On update an
// empty password keeps the current one.
type AdminInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password,omitempty"`
}

// Admins lists the admin accounts. Owner only.
func (c *Client) Admins(ctx context.Context, token string) ([]domain.Profile, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: adminsPath, token: token})
	if err != nil {
		return nil, err
	}
	raw, err := unwrapData(body)
	if err != nil {
		return nil, malformed(http.MethodGet, adminsPath, err)
	}
	// {"data": null} comes back as the bare envelope.
	if bytes.HasPrefix(raw, []byte("{")) {
		return []domain.Profile{}, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, malformed(http.MethodGet, adminsPath, err)
	}
	out := make([]domain.Profile, 0, len(entries))
	for _, entry := range entries {
		var w wireUser
		if err := lenientUnmarshal(entry, &w); err != nil || w.ID <= 0 {
			continue
		}
		out = append(out, w.toDomain().Profile)
	}
	return out, nil
}

// CreateAdmin adds an admin account.
func (c *Client) CreateAdmin(ctx context.Context, token string, in AdminInput) error {
	_, err := c.do(ctx, request{method: http.MethodPost, path: adminsPath, token: token, body: in})
	return err
}

// UpdateAdmin edits an admin account.
func (c *Client) UpdateAdmin(ctx context.Context, token string, id int64, in AdminInput) error {
	_, err := c.do(ctx, request{method: http.MethodPut, path: adminPath(id), token: token, body: in})
	return err
}

// DeleteAdmin removes an admin account.
func (c *Client) DeleteAdmin(ctx context.Context, token string, id int64) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: adminPath(id), token: token})
	return err
}

func adminPath(id int64) string {
	return adminsPath + "/" + strconv.FormatInt(id, 10)
}
