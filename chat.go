package o3chat

import (
	"context"
	"net/http"
	"strings"
)

// FetchMessages asks the server for new messages on channel ("" is the
// default channel) and merges them into the session state.
//
// If channel is not the state's current channel the state switches to it
// first, which drops the conditional token. On a v5 server with a stored
// token the request is conditional; a 204 answer means nothing new and
// leaves the state untouched.
func (c *Client) FetchMessages(ctx context.Context, channel string) (*FetchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetch(ctx, channel)
}

// FetchCurrent fetches new messages on the state's current channel. The
// channel is read after the client lock is taken, so a fetch queued behind
// a channel change targets the new channel instead of switching back.
func (c *Client) FetchCurrent(ctx context.Context) (*FetchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetch(ctx, c.state.Channel())
}

// fetch runs one fetch exchange. Must be called with mu held.
func (c *Client) fetch(ctx context.Context, channel string) (*FetchResult, error) {
	const op = "fetch"
	creds, err := c.snapshot(op)
	if err != nil {
		return nil, err
	}
	if err := requireLogin(op, creds); err != nil {
		return nil, err
	}

	codec := c.codec
	state := c.state
	if state.Channel() != channel {
		state.SetChannel(channel)
	}
	token := ""
	if codec.Conditional() {
		token = state.ConditionalToken()
	}

	x := c.begin(op)
	resp, err := c.send(ctx, x, creds, http.MethodGet, pathChat, nil, func(h http.Header) {
		authorize(creds)(h)
		h.Set("Content-Type", codec.ContentType())
		if channel != "" {
			h.Set("Channel-Name", channel)
		}
		if token != "" {
			h.Set("If-Modified-Since", token)
		}
	})
	if err != nil {
		c.finish(x, 0, err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		c.setNotification("")
		c.finish(x, resp.StatusCode, nil)
		return &FetchResult{Status: resp.StatusCode, Channel: channel}, nil
	}
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
	messages, lines, err := codec.DecodeMessages(data)
	if err != nil {
		err = &DecodeError{Op: op, Err: err}
		c.finish(x, resp.StatusCode, err)
		return nil, err
	}

	// Nothing below can fail, so the batch and its token land together.
	sortMessages(messages)
	result := &FetchResult{Status: resp.StatusCode, Channel: channel, Messages: messages, Lines: lines}
	if codec.Structured() {
		result.Added = state.Merge(messages)
	} else {
		result.Added = state.AppendLines(lines)
	}
	if codec.Conditional() {
		state.RecordConditionalToken(resp.Header.Get("Last-Modified"), codec.Version())
	}
	c.metrics.addMerged(result.Added)
	c.setNotification("")

	x.logger.Debug("merged chat messages", "channel", channel, "added", result.Added)
	c.finish(x, resp.StatusCode, nil)
	return result, nil
}

// PostMessage sends body to channel. v3+ messages are stamped with the
// current UTC time and posted under the user's nick.
//
// On a non-2xx answer the returned status is the server's and the error is
// a *ServerError whose body is the server's diagnostic, or a placeholder if
// that diagnostic could not be read.
func (c *Client) PostMessage(ctx context.Context, body, channel string) (int, error) {
	const op = "post"
	c.mu.Lock()
	defer c.mu.Unlock()

	creds, err := c.snapshot(op)
	if err != nil {
		return 0, err
	}
	if err := requireLogin(op, creds); err != nil {
		return 0, err
	}
	if strings.TrimSpace(body) == "" {
		return 0, precondition(op, ErrEmptyMessage)
	}

	payload, err := c.codec.EncodeMessage(body, channel, creds.DisplayNick(), c.clock.Now())
	if err != nil {
		return 0, precondition(op, err)
	}

	return c.command(ctx, op, creds, http.MethodPost, pathChat, payload, authorize(creds))
}
