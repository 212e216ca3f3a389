package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/slack-go/slack"
	"gopkg.in/yaml.v3"
)

// manifest is a declarative handler:
//
//	expression: "deploy (.*)"
//	description: deploys a service
//	reply: "deploying {{index .Match 1}}"
//	response_type: in_channel
type manifest struct {
	Expression   string `yaml:"expression"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	CallbackID   string `yaml:"callback_id"`
	Reply        string `yaml:"reply"`
	ResponseType string `yaml:"response_type"`
}

// replyData is the template data for a manifest reply.
type replyData struct {
	Command  slack.SlashCommand
	Match    []string
	Callback slack.InteractionCallback
	Action   string
	Value    string
}

func loadManifest(path string, r Registrar, sum *Summary) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var m manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}

	pattern := strings.TrimSpace(m.Expression)
	if pattern == "" {
		pattern = strings.TrimSpace(m.Name)
	}
	callbackID := strings.TrimSpace(m.CallbackID)
	if pattern == "" && callbackID == "" {
		return errNoTarget
	}

	switch m.ResponseType {
	case "", slack.ResponseTypeInChannel, slack.ResponseTypeEphemeral:
	default:
		return fmt.Errorf("unknown response_type %q", m.ResponseType)
	}

	tmpl, err := template.New(path).Option("missingkey=error").Parse(m.Reply)
	if err != nil {
		return fmt.Errorf("parse reply template: %w", err)
	}
	render := func(data replyData) (any, error) {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, err
		}
		if m.ResponseType == "" {
			return buf.String(), nil
		}
		return &slack.Msg{Text: buf.String(), ResponseType: m.ResponseType}, nil
	}

	if pattern != "" {
		r.RegisterCommand(pattern, func(_ context.Context, cmd slack.SlashCommand, match []string) (any, error) {
			return render(replyData{Command: cmd, Match: match})
		}, m.Description)
		sum.command(path, pattern)
	}
	if callbackID != "" {
		r.RegisterCallback(callbackID, func(_ context.Context, cb slack.InteractionCallback, action, value string) (any, error) {
			return render(replyData{Callback: cb, Action: action, Value: value})
		})
		sum.callback(path, callbackID)
	}
	return nil
}
