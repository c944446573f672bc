package o3chat

import (
	"context"
	"net/http"
)

// RegisterUser creates a new account on the server. The request carries no
// Authorization header. Username, password and email must all be set;
// otherwise nothing is sent.
func (c *Client) RegisterUser(ctx context.Context, r Registration) (int, error) {
	const op = "register"
	c.mu.Lock()
	defer c.mu.Unlock()

	creds, err := c.snapshot(op)
	if err != nil {
		return 0, err
	}
	if r.Username == "" || r.Password == "" || r.Email == "" {
		return 0, precondition(op, ErrIncompleteRegistration)
	}

	payload, err := c.codec.EncodeRegistration(r)
	if err != nil {
		return 0, precondition(op, err)
	}
	return c.command(ctx, op, creds, http.MethodPost, pathRegistration, payload, nil)
}
