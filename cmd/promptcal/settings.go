package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"promptcal/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the AI provider settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active AI settings with keys masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := json.MarshalIndent(masked(a.settings.Current()), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var setFlags struct {
	provider  string
	key       string
	model     string
	customURL string
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the active provider or a provider's key, model or URL",
	Example: `  promptcal settings set --provider openai --key sk-... --model gpt-4o
  promptcal settings set --provider custom --custom-url http://localhost:11434/v1/chat/completions`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		next := applySet(a.settings.Current(), setFlags.provider, setFlags.key, setFlags.model, setFlags.customURL)
		if err := a.settings.Save(ctx, next); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "provider: %s\n", next.Provider)
		return nil
	},
}

func init() {
	f := settingsSetCmd.Flags()
	f.StringVar(&setFlags.provider, "provider", "", "active provider: gemini, openai or custom")
	f.StringVar(&setFlags.key, "key", "", "API key for the provider")
	f.StringVar(&setFlags.model, "model", "", "model name for the provider")
	f.StringVar(&setFlags.customURL, "custom-url", "", "chat-completions URL for the custom provider")
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
}

// applySet updates cur. Key and model go to the named provider, or to the
// active one when provider is empty.
func applySet(cur settings.AiConfig, provider, key, model, customURL string) settings.AiConfig {
	if provider != "" {
		cur.Provider = settings.Provider(provider)
	}
	if customURL != "" {
		cur.CustomURL = customURL
	}
	switch cur.Provider {
	case settings.ProviderGemini:
		cur.Keys.Gemini = pick(key, cur.Keys.Gemini)
		cur.Models.Gemini = pick(model, cur.Models.Gemini)
	case settings.ProviderOpenAI:
		cur.Keys.OpenAI = pick(key, cur.Keys.OpenAI)
		cur.Models.OpenAI = pick(model, cur.Models.OpenAI)
	case settings.ProviderCustom:
		cur.Keys.Custom = pick(key, cur.Keys.Custom)
		cur.Models.Custom = pick(model, cur.Models.Custom)
	}
	return cur
}

func pick(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func masked(c settings.AiConfig) settings.AiConfig {
	c.Keys.Gemini = maskKey(c.Keys.Gemini)
	c.Keys.OpenAI = maskKey(c.Keys.OpenAI)
	c.Keys.Custom = maskKey(c.Keys.Custom)
	return c
}

func maskKey(k string) string {
	switch {
	case k == "":
		return ""
	case len(k) <= 8:
		return "****"
	default:
		return k[:4] + "****" + k[len(k)-4:]
	}
}
