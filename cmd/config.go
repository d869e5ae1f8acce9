package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/supportdesk/internal/output"
	"github.com/joescharf/supportdesk/internal/tracker"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "supportdesk"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage supportdesk configuration.

Running bare 'supportdesk config' is the same as 'supportdesk config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write config.yaml with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration and where each value comes from",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate time zone, layouts, port and markdown style",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configCheckRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config.yaml in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configCheckCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

const configTemplate = `# supportdesk configuration
# Effective values and their sources: supportdesk config show
# Every key can also be set as SUPPORTDESK_<KEY>, dots as underscores
# (e.g. SUPPORTDESK_DISPLAY_TIMEZONE).

# Where the database and server state live
# state_dir: {{ .StateDir }}
# db_path: {{ .DBPath }}

# Web UI and REST API port for 'supportdesk serve'
port: {{ .Port }}

display:
  # IANA zone used to bucket dashboard days and stamp CSV exports ("Local" = system)
  timezone: "{{ .Timezone }}"
  # Go layout for dashboard timeline days
  date_layout: "{{ .DateLayout }}"
  # Go layout for the CSV "Created Date" column
  datetime_layout: "{{ .DatetimeLayout }}"
  # glamour style for 'issue show': {{ .MarkdownStyles }}
  markdown_style: "{{ .MarkdownStyle }}"
  # Wrap width for 'issue show'
  width: {{ .Width }}

import:
  # Honour quoted CSV fields that contain commas (false = split on every comma)
  quote_aware: {{ .QuoteAware }}

# Ticket triage ('issue triage', POST /api/v1/issues/{id}/triage).
# The key may also come from ANTHROPIC_API_KEY.
anthropic:
  model: "{{ .AnthropicModel }}"
`

type configTemplateData struct {
	StateDir       string
	DBPath         string
	Port           int
	Timezone       string
	DateLayout     string
	DatetimeLayout string
	MarkdownStyle  string
	MarkdownStyles string
	Width          int
	QuoteAware     bool
	AnthropicModel string
}

// markdownStyles are the glamour standard styles that need no terminal query.
var markdownStyles = []string{"dark", "light", "notty", "ascii", "dracula", "pink", "tokyo-night"}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func renderConfigTemplate() ([]byte, error) {
	data := configTemplateData{
		StateDir:       viper.GetString("state_dir"),
		DBPath:         viper.GetString("db_path"),
		Port:           viper.GetInt("port"),
		Timezone:       viper.GetString("display.timezone"),
		DateLayout:     viper.GetString("display.date_layout"),
		DatetimeLayout: viper.GetString("display.datetime_layout"),
		MarkdownStyle:  viper.GetString("display.markdown_style"),
		MarkdownStyles: strings.Join(markdownStyles, ", "),
		Width:          viper.GetInt("display.width"),
		QuoteAware:     viper.GetBool("import.quote_aware"),
		AnthropicModel: viper.GetString("anthropic.model"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render config template: %w", err)
	}
	return buf.Bytes(), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	content, err := renderConfigTemplate()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, string(content))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, string(content))
	return nil
}

// configKey is a setting shown by 'config show'. Secret values are masked.
type configKey struct {
	Key    string
	Secret bool
}

var configKeys = []configKey{
	{Key: "state_dir"},
	{Key: "db_path"},
	{Key: "port"},
	{Key: "display.timezone"},
	{Key: "display.date_layout"},
	{Key: "display.datetime_layout"},
	{Key: "display.markdown_style"},
	{Key: "display.width"},
	{Key: "import.quote_aware"},
	{Key: "anthropic.api_key", Secret: true},
	{Key: "anthropic.model"},
}

// envVar is the environment variable viper binds key to.
func (k configKey) envVar() string {
	return "SUPPORTDESK_" + strings.ToUpper(strings.ReplaceAll(k.Key, ".", "_"))
}

func (k configKey) display() string {
	val := fmt.Sprint(viper.Get(k.Key))
	if k.Secret && val != "" {
		if len(val) > 8 {
			return val[:4] + "..." + val[len(val)-4:]
		}
		return "****"
	}
	return val
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	fileValues := readConfigFileValues(cfgPath)

	table := ui.Table([]string{"Key", "Value", "Source"})
	for _, k := range configKeys {
		_ = table.Append([]string{k.Key, k.display(), detectSource(k, fileValues)})
	}
	return table.Render()
}

// readConfigFileValues returns the dot-notation keys present in the YAML file.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource reports whether k comes from the environment, the file or the defaults.
func detectSource(k configKey, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(k.envVar()); ok {
		return "env: " + k.envVar()
	}
	if fileValues[k.Key] {
		return "file"
	}
	return "default"
}

// checkConfig returns one error per setting the commands would reject at run time.
func checkConfig() []error {
	var errs []error
	if _, err := tracker.LoadLocation(viper.GetString("display.timezone")); err != nil {
		errs = append(errs, fmt.Errorf("display.timezone: %w", err))
	}
	for _, key := range []string{"display.date_layout", "display.datetime_layout"} {
		if strings.TrimSpace(viper.GetString(key)) == "" {
			errs = append(errs, fmt.Errorf("%s: layout is empty", key))
		}
	}
	if port := viper.GetInt("port"); port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("port: %d is out of range", port))
	}
	if style := viper.GetString("display.markdown_style"); !slices.Contains(markdownStyles, style) {
		errs = append(errs, fmt.Errorf("display.markdown_style: unknown style %q (use: %s)", style, strings.Join(markdownStyles, ", ")))
	}
	return errs
}

func configCheckRun() error {
	errs := checkConfig()
	if len(errs) == 0 {
		ui.Success("Configuration OK")
		return nil
	}
	for _, err := range errs {
		ui.Error("%v", err)
	}
	return fmt.Errorf("%d config %s invalid: %w", len(errs), plural(len(errs), "value", "values"), errors.Join(errs...))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one + " is"
	}
	return many + " are"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'supportdesk config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, output.Cyan(editor))
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
