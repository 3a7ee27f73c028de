package repl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"judgebox/internal/cli/command"
	httpclient "judgebox/internal/cli/http"
	"judgebox/internal/cli/state"

	"github.com/google/shlex"
)

// firstTerminalStatus is the lowest status id that ends a submission.
const firstTerminalStatus = 3

var errExit = errors.New("exit")

// Options tunes a session.
type Options struct {
	StatePath    string
	PrettyJSON   bool
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

// Session holds REPL state.
type Session struct {
	client   *httpclient.Client
	commands map[string]command.Command
	state    *state.SessionState
	opts     Options
	out      *bufio.Writer
}

func New(client *httpclient.Client, commands map[string]command.Command, st *state.SessionState, opts Options, out io.Writer) *Session {
	return &Session{
		client:   client,
		commands: commands,
		state:    st,
		opts:     opts,
		out:      bufio.NewWriter(out),
	}
}

// Run reads commands from in until EOF, exit or ctx cancellation.
func (s *Session) Run(ctx context.Context, in io.Reader) {
	reader := bufio.NewReader(in)
	for {
		if ctx.Err() != nil {
			return
		}
		_, _ = s.out.WriteString("judgebox> ")
		_ = s.out.Flush()
		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.printLine("read input failed: %v", err)
			}
			return
		}
		if err := s.Exec(ctx, reader, line); err != nil {
			if errors.Is(err, errExit) {
				s.printLine("bye")
				return
			}
			s.printLine("error: %v", err)
		}
	}
}

// Exec runs one input line. reader supplies answers to prompts for missing fields.
func (s *Session) Exec(ctx context.Context, reader *bufio.Reader, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if handled, err := s.handleSystemCommand(line); handled {
		return err
	}
	return s.handleCommand(ctx, reader, line)
}

func (s *Session) handleSystemCommand(line string) (bool, error) {
	switch line {
	case "exit", "quit":
		return true, errExit
	case "help":
		s.printHelp()
		return true, nil
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true, nil
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return true, nil
	}
	return false, nil
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|timeout")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:2358")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 10s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "last":
		last, ok := s.state.Last()
		if !ok {
			s.printLine("last: <empty>")
			return
		}
		s.printLine("last: %s (%s) %s", last.Token, last.CreatedAt.Format(time.RFC3339), statusLabel(last))
	case "pending":
		pending := s.state.Pending()
		if len(pending) == 0 {
			s.printLine("pending: <none>")
			return
		}
		for _, e := range pending {
			s.printLine("%s (%s) %s", e.Token, e.CreatedAt.Format(time.RFC3339), statusLabel(e))
		}
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("statePath: %s", s.opts.StatePath)
	default:
		s.printLine("usage: show last|pending|config")
	}
}

func (s *Session) handleCommand(ctx context.Context, reader *bufio.Reader, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	cmd, ok := s.commands[tokens[0]+" "+tokens[1]]
	if !ok {
		return fmt.Errorf("unknown command: %s %s", tokens[0], tokens[1])
	}
	params := command.Params{}
	for _, token := range tokens[2:] {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid param: %s", token)
		}
		params.Set(parts[0], parts[1])
	}
	params.Canonicalize(cmd.Fields)

	s.applyParamShortcuts(cmd, params)
	if err := s.promptMissing(reader, cmd, params); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}

	if cmd.Service == "submission" && cmd.Action == "wait" {
		return s.wait(ctx, params.Get("token"), req)
	}

	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	s.rememberToken(cmd, resp)
	if cmd.Service == "submission" && cmd.Action == "get" {
		s.recordStatus(params.Get("token"), resp)
	}
	return nil
}

// applyParamShortcuts fills the token from the last created submission.
func (s *Session) applyParamShortcuts(cmd command.Command, params command.Params) {
	if cmd.Service != "submission" || (cmd.Action != "get" && cmd.Action != "wait") {
		return
	}
	token := params.Get("token")
	if (token == "" || token == "last") && s.state.LastToken != "" {
		params.Set("token", s.state.LastToken)
	}
}

func (s *Session) promptMissing(reader *bufio.Reader, cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required {
			continue
		}
		if params.Get(field.Name) != "" {
			continue
		}
		if field.FileParam != "" && params.Get(field.FileParam) != "" {
			continue
		}
		value, err := s.promptValue(reader, field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) promptValue(reader *bufio.Reader, prompt string) (string, error) {
	s.printLine("%s:", prompt)
	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

type submissionStatus struct {
	Status struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
}

func (s *Session) wait(ctx context.Context, token string, req command.RequestSpec) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.WaitTimeout)
	defer cancel()

	interval := s.opts.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	for {
		resp, err := s.client.Do(ctx, req.Method, req.Path, nil)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			s.renderResponse(resp)
			return nil
		}
		var view submissionStatus
		if err := json.Unmarshal(resp.Body, &view); err != nil {
			return fmt.Errorf("decode submission failed: %w", err)
		}
		if view.Status.ID >= firstTerminalStatus {
			s.renderResponse(resp)
			s.recordStatus(token, resp)
			return nil
		}
		s.printLine("... %s", view.Status.Description)

		select {
		case <-ctx.Done():
			return fmt.Errorf("submission still pending: %w", ctx.Err())
		case <-time.After(interval):
		}
	}
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration.Round(time.Millisecond))
	if len(resp.Body) == 0 {
		return
	}
	if s.opts.PrettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", strings.TrimRight(string(resp.Body), "\n"))
}

func (s *Session) rememberToken(cmd command.Command, resp httpclient.ResponseInfo) {
	if cmd.Service != "submission" || cmd.Action != "create" || resp.StatusCode != http.StatusCreated {
		return
	}
	var created struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body, &created); err != nil || created.Token == "" {
		return
	}
	s.state.Remember(created.Token, time.Now())
	s.saveState()
}

// recordStatus notes the status a remembered submission was last seen in.
func (s *Session) recordStatus(token string, resp httpclient.ResponseInfo) {
	if token == "" || resp.StatusCode != http.StatusOK {
		return
	}
	var view submissionStatus
	if err := json.Unmarshal(resp.Body, &view); err != nil {
		return
	}
	if s.state.Observe(token, view.Status.ID, view.Status.Description, time.Now()) {
		s.saveState()
	}
}

func (s *Session) saveState() {
	if s.opts.StatePath == "" {
		return
	}
	if err := state.Save(s.opts.StatePath, *s.state); err != nil {
		s.printLine("save session state failed: %v", err)
	}
}

func statusLabel(e state.Entry) string {
	if e.Status == "" {
		return "unchecked"
	}
	return e.Status
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | set base|timeout | show last|pending|config")
	s.printLine("commands:")
	for _, key := range command.Keys(s.commands) {
		s.printLine("  %-20s %s", key, s.commands[key].Summary)
	}
	s.printLine("examples:")
	s.printLine("  submission create lang=4 source_file=./main.py stdin=\"1 2\" expected=3")
	s.printLine("  submission create lang=1 code='int main(){return 0;}' cflags=\"-O2 -Wall\"")
	s.printLine("  submission wait")
	s.printLine("  language get id=2")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
	_ = s.out.Flush()
}
