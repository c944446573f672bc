package o3chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// DefaultChannelName is the user-facing name of the default channel.
// Changing to it never contacts the server.
const DefaultChannelName = "main"

// CreateChannel asks the server to create a channel. If CreatedBy is empty
// the logged-in username is used.
func (c *Client) CreateChannel(ctx context.Context, ch NewChannel) (int, error) {
	const op = "create_channel"
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
	name := strings.TrimSpace(ch.Name)
	if name == "" {
		return 0, precondition(op, ErrMissingChannelName)
	}
	createdBy := ch.CreatedBy
	if createdBy == "" {
		createdBy = creds.Username
	}

	payload, err := encodeJSON(createChannelJSON{
		NewChannelName: name,
		Description:    ch.Description,
		CreatedBy:      createdBy,
	})
	if err != nil {
		return 0, precondition(op, err)
	}
	return c.command(ctx, op, creds, http.MethodPost, pathCreateChannel, payload, authorize(creds))
}

// ChangeChannel switches the session to channel name. On success the
// conditional token is dropped, so the next fetch returns the new
// channel's full history.
//
// "main" and "" select the default channel locally; the returned Status is
// 0 because no request was made.
func (c *Client) ChangeChannel(ctx context.Context, name string) (*ChannelInfo, error) {
	const op = "change_channel"
	c.mu.Lock()
	defer c.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" || name == DefaultChannelName {
		c.state.SetChannel("")
		return &ChannelInfo{Name: DefaultChannelName}, nil
	}

	creds, err := c.snapshot(op)
	if err != nil {
		return nil, err
	}
	if err := requireLogin(op, creds); err != nil {
		return nil, err
	}
	if err := c.structuredOnly(op); err != nil {
		return nil, err
	}

	payload, err := encodeJSON(changeChannelJSON{ChannelName: name})
	if err != nil {
		return nil, precondition(op, err)
	}

	x := c.begin(op)
	resp, err := c.send(ctx, x, creds, http.MethodPost, pathChangeChannel, &payload, authorize(creds))
	if err != nil {
		c.finish(x, 0, err)
		return nil, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		err := c.failure(x, resp)
		c.finish(x, resp.StatusCode, err)
		return nil, err
	}

	data, err := readBody(x, resp.Body)
	if err != nil {
		c.finish(x, resp.StatusCode, err)
		return nil, err
	}
	var raw channelInfoJSON
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			err = &DecodeError{Op: op, Err: err}
			c.finish(x, resp.StatusCode, err)
			return nil, err
		}
	}

	info := &ChannelInfo{
		Status:      resp.StatusCode,
		Name:        raw.ChannelName,
		Description: raw.Description,
		CreatedBy:   raw.CreatedBy,
	}
	if info.Name == "" {
		info.Name = name
	}
	c.state.SetChannel(info.Name)
	c.setNotification("")

	x.logger.Info("changed channel", "channel", info.Name)
	c.finish(x, resp.StatusCode, nil)
	return info, nil
}
