package handlers

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/stackup-sh/stackup/internal/provisioning/credentials"
	"github.com/stackup-sh/stackup/internal/secrets"
)

// secretEntry represents a single credential for display.
type secretEntry struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Value    string `json:"value"`
}

// Secrets displays the credentials generated for this stack.
func Secrets(configPath string, jsonOutput bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	store := secrets.NewStore(cfg.SecretsDir())
	if !store.Exists(credentials.NameDBPassword) {
		return fmt.Errorf("no secrets found under %s. Run 'stackup provision' first", cfg.SecretsDir())
	}

	entries := collectSecrets(cfg.Settings.Path, cfg.LedgerPath(), store)

	if jsonOutput {
		b, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		fmt.Println(string(b))
		return nil
	}

	printSecretsStyled(cfg.App.Name, entries)
	return nil
}

// collectSecrets reads the persisted values. Reading never generates: a
// credential the provisioner has not created yet is simply absent.
func collectSecrets(settingsPath, ledgerPath string, store *secrets.Store) []secretEntry {
	entries := []secretEntry{
		{Category: "Files", Name: "settings", Value: settingsPath},
		{Category: "Files", Name: "ledger", Value: ledgerPath},
	}

	named := []struct {
		category, name, file string
	}{
		{"Database", "password", credentials.NameDBPassword},
		{"Application", "secret key", credentials.NameSecretKey},
		{"Application", "token pepper", credentials.NameTokenPepper},
		{"Admin", "password", credentials.NameAdminPassword},
	}
	for _, n := range named {
		data, err := os.ReadFile(store.Path(n.file))
		if err != nil {
			continue
		}
		entries = append(entries, secretEntry{
			Category: n.category,
			Name:     n.name,
			Value:    strings.TrimRight(string(data), "\n"),
		})
	}
	return entries
}

func printSecretsStyled(appName string, entries []secretEntry) {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f9fafb"))
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3b82f6"))
	nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e"))

	fmt.Println()
	fmt.Println(titleStyle.Render(fmt.Sprintf("  stackup secrets: %s", appName)))
	fmt.Println()

	var lastCategory string
	for _, e := range entries {
		if e.Category != lastCategory {
			fmt.Println(sectionStyle.Render("  " + e.Category))
			lastCategory = e.Category
		}
		fmt.Printf("    %s %s\n", nameStyle.Render(e.Name+":"), valueStyle.Render(e.Value))
	}
	fmt.Println()
}
