package text

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var defaults = map[string]string{
	"command.wrong-args":             "Wrong arguments. Usage: /transfer <player> | accept | deny | <from> <to>",
	"command.transfer-success-other": "Transferred {0} shop(s) from {1} to {2}.",
	"unknown-player":                 "Unknown player.",
	"player-offline":                 "Player {0} is offline.",
	"no-permission":                  "You do not have permission to do that.",
	"transfer-no-self":               "You cannot transfer shops to yourself ({0}).",
	"transfer-no-pending-operation":  "You have no pending transfer request.",
	"transfer-sent":                  "Transfer request sent to {0}.",
	"transfer-request":               "{0} wants to transfer all of their shops to you.",
	"transfer-ask":                   "Type /transfer accept or /transfer deny. The request expires in {0} seconds.",
	"transfer-rejected-fromside":     "{0} rejected your transfer request.",
	"transfer-rejected-toside":       "You rejected the transfer request from {0}.",
	"transfer-accepted-fromside":     "{0} accepted your transfer request.",
	"transfer-accepted-toside":       "You accepted the transfer request from {0}.",
}

var placeholder = regexp.MustCompile(`\{(\d+)\}`)

// Catalog renders message templates. Unknown keys render as the key itself.
// It is read-only after construction.
type Catalog struct {
	templates map[string]string
}

func New(overrides map[string]string) *Catalog {
	c := &Catalog{templates: make(map[string]string, len(defaults)+len(overrides))}
	for k, v := range defaults {
		c.templates[k] = v
	}
	for k, v := range overrides {
		if strings.TrimSpace(v) != "" {
			c.templates[k] = v
		}
	}
	return c
}

// Load reads a flat yaml map of key -> template on top of the defaults.
// Entries in inline win over the file.
func Load(path string, inline map[string]string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := map[string]string{}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("messages.yaml: %w", err)
	}
	for k, v := range inline {
		m[k] = v
	}
	return New(m), nil
}

func (c *Catalog) Has(key string) bool {
	_, ok := c.templates[key]
	return ok
}

func (c *Catalog) Render(key string, args ...any) string {
	tpl, ok := c.templates[key]
	if !ok {
		tpl = key
	}
	return placeholder.ReplaceAllStringFunc(tpl, func(m string) string {
		i, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil || i >= len(args) {
			return m
		}
		return fmt.Sprint(args[i])
	})
}

// Args formats args the way Render does, for transports that ship them raw.
func Args(args ...any) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = fmt.Sprint(a)
	}
	return out
}
