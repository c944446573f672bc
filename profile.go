package o3chat

import (
	"context"
	"net/http"
)

// UpdateProfile changes the logged-in user's details. Unset fields are sent
// as empty strings. On success the caller should refresh its own
// credentials; the client does not cache them.
func (c *Client) UpdateProfile(ctx context.Context, u ProfileUpdate) (int, error) {
	const op = "update_profile"
	c.mu.Lock()
	defer c.mu.Unlock()

	creds, err := c.snapshot(op)
	if err != nil {
		return 0, err
	}
	if err := requireLogin(op, creds); err != nil {
		return 0, err
	}
	if err := c.structuredOnly(op); err != nil {
		return 0, err
	}

	payload, err := encodeJSON(profileUpdateJSON{
		OldUsername: u.OldUsername,
		User:        u.Username,
		Password:    u.Password,
		Email:       u.Email,
	})
	if err != nil {
		return 0, precondition(op, err)
	}
	return c.command(ctx, op, creds, http.MethodPut, pathUpdateProfile, payload, authorize(creds))
}
