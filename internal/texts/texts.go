// Package texts holds the user-facing reply strings.
package texts

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ykvlv/daily-prompt-bot/assets"
)

// Texts is the reply table. Values are immutable after Load.
type Texts struct {
	Subscribed        string `yaml:"subscribed"`
	AlreadySubscribed string `yaml:"already_subscribed"`
	Unsubscribed      string `yaml:"unsubscribed"`
	Prompt            string `yaml:"prompt"` // %s = prompt text
	Reminder          string `yaml:"reminder"`
	Received          string `yaml:"received"`
	NoPrompt          string `yaml:"no_prompt"`
	NotSubscribed     string `yaml:"not_subscribed"`
	Status            string `yaml:"status"` // %d = prompt number, %s = sent at, %s = answered
	StatusYes         string `yaml:"status_yes"`
	StatusNo          string `yaml:"status_no"`
	Help              string `yaml:"help"`
	UnknownCommand    string `yaml:"unknown_command"`
	Error             string `yaml:"error"`
}

// Default returns the embedded reply table.
func Default() (Texts, error) {
	var t Texts
	if err := decodeStrict(assets.DefaultTexts, &t); err != nil {
		return Texts{}, fmt.Errorf("embedded texts: %w", err)
	}
	if err := t.checkVerbs(); err != nil {
		return Texts{}, fmt.Errorf("embedded texts: %w", err)
	}
	return t, nil
}

// Load returns the embedded table with keys from the file at path laid over
// it. An empty path returns the defaults.
func Load(path string) (Texts, error) {
	t, err := Default()
	if err != nil {
		return Texts{}, err
	}
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Texts{}, fmt.Errorf("read texts: %w", err)
	}
	// Decoding into the populated struct keeps keys the file does not set.
	if err := decodeStrict(data, &t); err != nil {
		return Texts{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := t.checkVerbs(); err != nil {
		return Texts{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// checkVerbs rejects format strings whose verbs do not match the arguments
// PromptMessage and StatusMessage pass.
func (t Texts) checkVerbs() error {
	if got := verbs(t.Prompt); got != "s" {
		return fmt.Errorf("prompt must contain exactly one %%s, has %q", got)
	}
	if got := verbs(t.Status); got != "dss" {
		return fmt.Errorf("status must contain %%d, %%s, %%s in that order, has %q", got)
	}
	return nil
}

// verbs returns the printf verb letters of format in order; %% is skipped.
func verbs(format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		for i < len(format) && strings.IndexByte("+-# 0123456789.", format[i]) >= 0 {
			i++
		}
		if i >= len(format) {
			b.WriteByte('!')
			break
		}
		if format[i] != '%' {
			b.WriteByte(format[i])
		}
	}
	return b.String()
}

func decodeStrict(data []byte, out *Texts) error {
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// PromptMessage formats a prompt for delivery.
func (t Texts) PromptMessage(prompt string) string {
	return fmt.Sprintf(t.Prompt, prompt)
}

// StatusMessage formats the /status reply. number is 1-based.
func (t Texts) StatusMessage(number int, sentAt string, answered bool) string {
	yn := t.StatusNo
	if answered {
		yn = t.StatusYes
	}
	return fmt.Sprintf(t.Status, number, sentAt, yn)
}
