// Package loader registers handlers described by files in a directory:
// YAML manifests with templated replies and sandboxed Lua scripts.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sipeed/slashroute/pkg/commands"
	"github.com/sipeed/slashroute/pkg/logger"
)

// Registrar is the registration surface a loader writes into.
// *commands.Dispatcher satisfies it.
type Registrar interface {
	RegisterCommand(pattern string, handler commands.Handler, description string)
	RegisterCallback(id string, handler commands.CallbackHandler)
}

// Summary lists what a Load call registered, in registration order.
type Summary struct {
	Commands  []string
	Callbacks []string
	Skipped   []string

	scripts []*script
}

// Close releases the Lua states backing scripted handlers.
func (s *Summary) Close() {
	for _, sc := range s.scripts {
		sc.close()
	}
	s.scripts = nil
}

// Load registers every handler file in dir, in lexical file name order.
// Subdirectories and files with other extensions are skipped. The first
// invalid file aborts the load; handlers registered before it remain.
func Load(dir string, r Registrar) (Summary, error) {
	var sum Summary

	entries, err := os.ReadDir(dir)
	if err != nil {
		return sum, fmt.Errorf("read handlers dir: %w", err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			sum.Skipped = append(sum.Skipped, path)
			continue
		}

		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
			err = loadManifest(path, r, &sum)
		case ".lua":
			err = loadScript(path, r, &sum)
		default:
			sum.Skipped = append(sum.Skipped, path)
			continue
		}
		if err != nil {
			return sum, fmt.Errorf("%s: %w", path, err)
		}
	}

	logger.InfoCF("loader", "Loaded handlers", map[string]any{
		"dir":       dir,
		"commands":  len(sum.Commands),
		"callbacks": len(sum.Callbacks),
		"skipped":   len(sum.Skipped),
	})
	return sum, nil
}

var errNoTarget = errors.New("needs an expression (or name) or a callback_id")

func (s *Summary) command(path, pattern string) {
	s.Commands = append(s.Commands, pattern)
	logger.DebugCF("loader", "Registered command", map[string]any{
		"file":    path,
		"pattern": pattern,
	})
}

func (s *Summary) callback(path, id string) {
	s.Callbacks = append(s.Callbacks, id)
	logger.DebugCF("loader", "Registered callback", map[string]any{
		"file":        path,
		"callback_id": id,
	})
}
