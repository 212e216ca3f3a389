package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	lua "github.com/yuin/gopher-lua"

	"github.com/sipeed/slashroute/pkg/commands"
)

// script is one Lua file with its own interpreter state. gopher-lua states
// are not goroutine-safe, so every call holds mu.
type script struct {
	path string
	L    *lua.LState
	mu   sync.Mutex

	// set for the duration of a handler call, read by followup()
	ctx         context.Context
	responseURL string
}

func newScript(path string) (*script, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}

	s := &script{path: path, L: L}
	L.SetGlobal("followup", L.NewFunction(s.followup))

	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("run script: %w", err)
	}
	if L.GetGlobal("handler").Type() != lua.LTFunction {
		L.Close()
		return nil, errors.New("script must define a handler function")
	}
	return s, nil
}

func loadScript(path string, r Registrar, sum *Summary) error {
	s, err := newScript(path)
	if err != nil {
		return err
	}

	pattern := s.globalString("expression")
	if pattern == "" {
		pattern = s.globalString("name")
	}
	callbackID := s.globalString("callback_id")
	if pattern == "" && callbackID == "" {
		s.close()
		return errNoTarget
	}

	sum.scripts = append(sum.scripts, s)
	if pattern != "" {
		r.RegisterCommand(pattern, s.command, s.globalString("description"))
		sum.command(path, pattern)
	}
	if callbackID != "" {
		r.RegisterCallback(callbackID, s.callback)
		sum.callback(path, callbackID)
	}
	return nil
}

func (s *script) globalString(name string) string {
	if v, ok := s.L.GetGlobal(name).(lua.LString); ok {
		return strings.TrimSpace(string(v))
	}
	return ""
}

func (s *script) command(ctx context.Context, cmd slack.SlashCommand, match []string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := s.table(map[string]string{
		"command":      cmd.Command,
		"text":         cmd.Text,
		"user_id":      cmd.UserID,
		"user_name":    cmd.UserName,
		"channel_id":   cmd.ChannelID,
		"channel_name": cmd.ChannelName,
		"team_id":      cmd.TeamID,
		"team_domain":  cmd.TeamDomain,
		"response_url": cmd.ResponseURL,
		"trigger_id":   cmd.TriggerID,
	})
	groups := s.L.NewTable()
	for _, m := range match {
		groups.Append(lua.LString(m))
	}
	return s.call(ctx, cmd.ResponseURL, payload, groups)
}

func (s *script) callback(ctx context.Context, cb slack.InteractionCallback, action, value string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := s.table(map[string]string{
		"type":         string(cb.Type),
		"callback_id":  cb.CallbackID,
		"user_id":      cb.User.ID,
		"user_name":    cb.User.Name,
		"channel_id":   cb.Channel.ID,
		"response_url": cb.ResponseURL,
		"trigger_id":   cb.TriggerID,
	})
	return s.call(ctx, cb.ResponseURL, payload, lua.LString(action), lua.LString(value))
}

// call runs handler with mu held.
func (s *script) call(ctx context.Context, responseURL string, args ...lua.LValue) (any, error) {
	s.ctx, s.responseURL = ctx, responseURL
	s.L.SetContext(ctx)
	defer func() {
		s.ctx, s.responseURL = nil, ""
		s.L.RemoveContext()
	}()

	if err := s.L.CallByParam(lua.P{
		Fn:      s.L.GetGlobal("handler"),
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}

	ret := s.L.Get(-1)
	s.L.Pop(1)
	switch v := ret.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LString:
		return string(v), nil
	default:
		return ret.String(), nil
	}
}

func (s *script) table(fields map[string]string) *lua.LTable {
	t := s.L.NewTable()
	for k, v := range fields {
		t.RawSetString(k, lua.LString(v))
	}
	return t
}

// followup(text) posts text to the current request's response_url.
func (s *script) followup(L *lua.LState) int {
	text := L.CheckString(1)
	if s.ctx == nil {
		L.RaiseError("followup called outside a handler")
		return 0
	}
	if err := commands.FollowUp(s.ctx, s.responseURL, &slack.WebhookMessage{Text: text}); err != nil {
		L.RaiseError("followup: %s", err.Error())
	}
	return 0
}

func (s *script) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.L.Close()
}
