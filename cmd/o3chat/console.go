package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	o3chat "github.com/EetuSeppa/O3-chat-client"
	"github.com/EetuSeppa/O3-chat-client/autofetch"
	"github.com/EetuSeppa/O3-chat-client/chat"
	"github.com/muesli/termenv"
)

const (
	prompt         = "O3-chat > "
	sentTimeLayout = "2006-01-02 15:04:05"
)

// ANSI palette indexes.
const (
	colorDate  = "2"
	colorInfo  = "3"
	colorBody  = "6"
	colorError = "9"
	colorNick  = "12"
)

type console struct {
	in      *bufio.Reader
	session *chat.Session

	// readPassword reads a secret without echo. Nil reads a plain line.
	readPassword func(out io.Writer) (string, error)
	// saveColor persists the /color choice. Optional.
	saveColor func(on bool) error
	// rememberChannel records a successful /change. Optional.
	rememberChannel func(channel string) error

	mu      sync.Mutex
	out     io.Writer
	profile termenv.Profile
	color   bool
}

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{
		in:      bufio.NewReader(in),
		out:     out,
		profile: termenv.ANSI,
	}
}

// run reads commands until /exit or end of input.
func (c *console) run(ctx context.Context) error {
	c.println(colorInfo, "Welcome to O3 chat. Type /help for commands.")
	c.printInfo()

	for {
		line, ok, err := c.prompt(prompt)
		if err != nil {
			return err
		}
		if !ok {
			c.exit()
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			c.post(ctx, line)
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch strings.ToLower(cmd) {
		case "/exit":
			c.exit()
			return nil
		case "/help":
			c.printHelp()
		case "/info":
			c.printInfo()
		case "/server":
			err = c.changeServer(arg)
		case "/register":
			err = c.register(ctx)
		case "/login":
			err = c.login(ctx)
		case "/nick":
			err = c.nick(arg)
		case "/get":
			c.get(ctx)
		case "/auto":
			c.toggleAutoFetch(ctx)
		case "/color":
			c.toggleColor()
		case "/update":
			err = c.updateProfile(ctx)
		case "/create":
			err = c.createChannel(ctx, arg)
		case "/change":
			err = c.changeChannel(ctx, arg)
		default:
			c.println(colorError, "Unknown command "+cmd+", /help lists the commands.")
		}
		if err != nil {
			return err
		}
	}
}

// prompt prints label and reads one line. ok is false at end of input.
func (c *console) prompt(label string) (string, bool, error) {
	c.print(label)
	line, err := c.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if line == "" {
				return "", false, nil
			}
			return strings.TrimRight(line, "\r\n"), true, nil
		}
		return "", false, err
	}
	return strings.TrimRight(line, "\r\n"), true, nil
}

// promptLine is prompt for answers inside a command, where end of input
// counts as an empty answer.
func (c *console) promptLine(label string) (string, error) {
	line, _, err := c.prompt(label)
	return strings.TrimSpace(line), err
}

func (c *console) promptPassword(label string) (string, error) {
	if c.readPassword == nil {
		line, _, err := c.prompt(label)
		return line, err
	}
	c.print(label)
	return c.readPassword(c.out)
}

func (c *console) exit() {
	c.session.StopAutoFetch()
	c.println(colorInfo, "Bye!")
}

func (c *console) post(ctx context.Context, body string) {
	if _, err := c.session.PostMessage(ctx, body); err != nil {
		c.printError(err)
		return
	}
	if !c.session.AutoFetching() {
		c.fetch(ctx, false)
	}
}

func (c *console) get(ctx context.Context) {
	if c.session.AutoFetching() {
		c.println(colorInfo, "Auto-fetch is on, new messages show up by themselves.")
		return
	}
	c.fetch(ctx, true)
}

func (c *console) fetch(ctx context.Context, announceEmpty bool) {
	res, err := c.session.FetchMessages(ctx)
	if err != nil {
		c.printError(err)
		return
	}
	if res.Added == 0 {
		if announceEmpty {
			c.println(colorInfo, "No new messages from server.")
		}
		return
	}
	c.printResult(res)
}

func (c *console) changeServer(arg string) error {
	current := c.session.Info().Server
	c.println(colorInfo, "Server in use is "+current)
	address := arg
	if address == "" {
		var err error
		if address, err = c.promptLine("Enter server address > "); err != nil {
			return err
		}
	}
	if address == "" {
		return nil
	}
	answer, err := c.promptLine(fmt.Sprintf("Change server from %s to %s Y/n? > ", current, address))
	if err != nil {
		return err
	}
	if answer != "" && !strings.EqualFold(answer, "y") {
		c.println(colorInfo, "Server not changed.")
		return nil
	}
	if err := c.session.ChangeServer(address); err != nil {
		c.printError(err)
		return nil
	}
	c.println(colorInfo, "Server in use is "+address)
	c.println(colorInfo, "Remember to /register and/or /login to the new server!")
	return nil
}

func (c *console) register(ctx context.Context) error {
	c.println(colorInfo, "Give user name, password and email for the new account.")
	username, err := c.promptLine("Username > ")
	if err != nil {
		return err
	}
	password, err := c.promptPassword("Password > ")
	if err != nil {
		return err
	}
	email, err := c.promptLine("Email > ")
	if err != nil {
		return err
	}

	_, err = c.session.Register(ctx, o3chat.Registration{Username: username, Password: password, Email: email})
	if err != nil {
		c.println(colorError, "Failed to register!")
		c.printError(err)
		return nil
	}
	c.println(colorInfo, "Registered successfully, you may start chatting!")
	return nil
}

func (c *console) login(ctx context.Context) error {
	username, err := c.promptLine("Username > ")
	if err != nil {
		return err
	}
	if username == "" {
		c.println(colorInfo, "Continuing with existing credentials.")
		c.printInfo()
		return nil
	}
	password, err := c.promptPassword("Password > ")
	if err != nil {
		return err
	}
	if password == "" {
		c.println(colorInfo, "Canceled, /register or /login!")
		return c.session.Logout()
	}
	if err := c.session.Login(username, password); err != nil {
		c.printError(err)
		return nil
	}
	c.fetch(ctx, false)
	return nil
}

func (c *console) nick(arg string) error {
	nick := arg
	if nick == "" {
		var err error
		if nick, err = c.promptLine("Nick > "); err != nil {
			return err
		}
	}
	if nick == "" {
		return nil
	}
	c.session.SetNick(nick)
	c.println(colorInfo, "Nick is now "+c.session.Info().Nick)
	return nil
}

func (c *console) toggleAutoFetch(ctx context.Context) {
	on, err := c.session.ToggleAutoFetch(ctx)
	if err != nil {
		if errors.Is(err, o3chat.ErrNotLoggedIn) {
			c.println(colorError, "Login first to fetch messages.")
			return
		}
		c.printError(err)
		return
	}
	if on {
		c.println(colorInfo, "Auto-fetch is on.")
	} else {
		c.println(colorInfo, "Auto-fetch is off.")
	}
}

func (c *console) toggleColor() {
	c.mu.Lock()
	c.color = !c.color
	on := c.color
	c.mu.Unlock()
	if on {
		c.println(colorInfo, "Color output is on.")
	} else {
		c.println(colorInfo, "Color output is off.")
	}
	if c.saveColor != nil {
		if err := c.saveColor(on); err != nil {
			c.println(colorError, "Could not save the color setting: "+err.Error())
		}
	}
}

func (c *console) setColor(on bool) {
	c.mu.Lock()
	c.color = on
	c.mu.Unlock()
}

func (c *console) updateProfile(ctx context.Context) error {
	c.println(colorInfo, "Give the new details. Empty answers are sent as empty.")
	username, err := c.promptLine("New username > ")
	if err != nil {
		return err
	}
	password, err := c.promptPassword("New password > ")
	if err != nil {
		return err
	}
	email, err := c.promptLine("New email > ")
	if err != nil {
		return err
	}
	_, err = c.session.UpdateProfile(ctx, o3chat.ProfileUpdate{Username: username, Password: password, Email: email})
	if err != nil {
		c.printError(err)
		return nil
	}
	c.println(colorInfo, "Profile updated.")
	c.printInfo()
	return nil
}

func (c *console) createChannel(ctx context.Context, arg string) error {
	name := arg
	if name == "" {
		var err error
		if name, err = c.promptLine("Channel name > "); err != nil {
			return err
		}
	}
	description, err := c.promptLine("Description > ")
	if err != nil {
		return err
	}
	if _, err := c.session.CreateChannel(ctx, name, description); err != nil {
		c.printError(err)
		return nil
	}
	c.println(colorInfo, "Created channel "+strings.TrimSpace(name)+", use /change to join it.")
	return nil
}

func (c *console) changeChannel(ctx context.Context, arg string) error {
	name := arg
	if name == "" {
		var err error
		if name, err = c.promptLine("Channel name > "); err != nil {
			return err
		}
	}
	info, err := c.session.ChangeChannel(ctx, name)
	if err != nil {
		c.printError(err)
		return nil
	}
	c.println(colorInfo, "Channel is now "+info.Name)
	if info.Description != "" {
		c.println(colorInfo, info.Description)
	}
	if c.rememberChannel != nil {
		if err := c.rememberChannel(info.Name); err != nil {
			c.println(colorError, "Could not remember the channel: "+err.Error())
		}
	}
	if !c.session.AutoFetching() {
		c.fetch(ctx, false)
	}
	return nil
}

// printTick is the auto-fetch report hook. It runs on the scheduler's
// goroutine, so it redraws the prompt after printing.
func (c *console) printTick(tick autofetch.Tick) {
	switch {
	case tick.Skipped:
		return
	case tick.Err != nil:
		c.printError(tick.Err)
	case tick.Result == nil || tick.Result.Added == 0:
		return
	default:
		c.print("\n")
		c.printResult(tick.Result)
	}
	c.print(prompt)
}

func (c *console) printResult(res *o3chat.FetchResult) {
	for _, line := range res.Lines {
		c.println(colorBody, line)
	}
	for _, m := range res.Messages {
		c.printMessage(m)
	}
}

func (c *console) printMessage(m o3chat.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sent := m.SentAt.Local().Format(sentTimeLayout)
	fmt.Fprintf(c.out, "%s %s %s\n",
		c.styleLocked(colorDate, sent),
		c.styleLocked(colorNick, m.Sender),
		c.styleLocked(colorBody, m.Body))
}

func (c *console) printError(err error) {
	c.println(colorError, describe(err, c.session))
}

func (c *console) printInfo() {
	info := c.session.Info()
	user := info.Username
	if user == "" {
		user = "(not logged in)"
	}
	auto := "off"
	if info.AutoFetch {
		auto = "on"
	}
	c.println(colorInfo, fmt.Sprintf("Server: %s (protocol v%d)", info.Server, info.Version))
	c.println(colorInfo, fmt.Sprintf("User: %s  Nick: %s  Email: %s", user, info.Nick, info.Email))
	c.println(colorInfo, fmt.Sprintf("Channel: %s  Auto-fetch: %s  Messages: %d", info.Channel, auto, info.Messages))
}

func (c *console) printHelp() {
	c.println(colorInfo, `Commands:
  /server [address]  change the server
  /register          register a new account and use it
  /login             log in with an existing account
  /nick [nick]       change the nick shown with your messages
  /get               fetch new messages
  /auto              toggle automatic fetching
  /color             toggle colors
  /update            change username, password and email (v3+)
  /create [name]     create a channel (v3+)
  /change [name]     switch channel, "main" is the default (v3+)
  /info              show session details
  /help              show this help
  /exit              quit
Anything else is posted as a message.`)
}

func (c *console) print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, s)
}

func (c *console) println(color, s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, c.styleLocked(color, s))
}

func (c *console) styleLocked(color, s string) string {
	if !c.color {
		return s
	}
	return c.profile.String(s).Foreground(c.profile.Color(color)).String()
}

// describe turns an operation error into a line for the user.
func describe(err error, session *chat.Session) string {
	var (
		pre       *o3chat.PreconditionError
		serverErr *o3chat.ServerError
		transport *o3chat.TransportError
		decode    *o3chat.DecodeError
	)
	switch {
	case errors.Is(err, o3chat.ErrNotLoggedIn):
		return "Must /register or /login to the server first."
	case errors.Is(err, o3chat.ErrUnsupported):
		return fmt.Sprintf("Not available with protocol v%d.", session.Client().Version())
	case errors.As(err, &pre):
		return pre.Err.Error()
	case errors.As(err, &serverErr):
		text := session.Notification()
		if text == "" {
			text = serverErr.Body
		}
		if text == "" {
			return fmt.Sprintf("Error from server: %d", serverErr.StatusCode)
		}
		return fmt.Sprintf("Error from server: %d %s", serverErr.StatusCode, text)
	case errors.As(err, &transport):
		return fmt.Sprintf("Error communicating with %s: %v", session.Info().Server, transport.Err)
	case errors.As(err, &decode):
		return fmt.Sprintf("Server sent data that could not be read: %v", decode.Err)
	}
	return err.Error()
}
