package args

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/markis/gh-coverletter/internal/config"
	"github.com/spf13/cobra"
)

// Action selects what the CLI does after parsing.
type Action int

const (
	ActionGenerate Action = iota
	ActionListModels
	ActionConfigGet
	ActionConfigSet
)

// Arguments represents the command-line arguments structure.
type Arguments struct {
	Action       Action
	Source       string
	Page         string
	Model        string
	Temperature  float64
	MaxTokens    int
	BaseFile     string
	Command      string
	Instructions []string
	UsePlainText bool
	Debug        bool
	ConfigKey    string
	ConfigValue  string
}

// readStdin returns piped input, or false when stdin is a terminal.
var readStdin = func() (string, bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
		return "", false, nil
	}
	return readAll(os.Stdin)
}

func readAll(r io.Reader) (string, bool, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024) // 4MB max line
	var buf strings.Builder
	for scanner.Scan() {
		buf.WriteString(scanner.Text())
		buf.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", false, fmt.Errorf("failed to read stdin: %w", err)
	}
	page := strings.TrimSpace(buf.String())
	return page, page != "", nil
}

// ErrHelp is returned when usage was printed instead of running a command.
var ErrHelp = errors.New("help requested")

var reservedCommands = map[string]bool{"models": true, "config": true, "help": true, "completion": true}

// ParseArgs parses argv and piped stdin into Arguments.
// A vacancy is given as a URL, a saved HTML file, or an HTML page piped on stdin.
// Named prompts from the config become subcommands that add their instruction
// to the generation.
func ParseArgs(ctx context.Context, cfg config.Config, argv []string) (Arguments, error) {
	args := Arguments{Action: ActionGenerate}
	ran := false

	rootCmd := &cobra.Command{
		Use:   "gh-coverletter [flags] [vacancy-url|file]",
		Short: "Generate a cover letter for a job vacancy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			ran = true
			if len(cmdArgs) > 0 {
				args.Source = cmdArgs[0]
			}
			return nil
		},
		SilenceErrors: true, // We'll handle error reporting
		SilenceUsage:  true, // We'll handle usage display
	}
	rootCmd.SetArgs(argv)
	rootCmd.SetContext(ctx)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&args.Model, "model", cfg.Model, "The AI model to use")
	flags.Float64Var(&args.Temperature, "temperature", cfg.Temperature, "Sampling temperature (0.2-0.5)")
	flags.IntVar(&args.MaxTokens, "max-tokens", cfg.MaxTokens, "Maximum tokens to generate")
	flags.StringVar(&args.BaseFile, "base-file", "", "Read the base letter from a file instead of the config")
	flags.BoolVar(&args.UsePlainText, "plain", shouldUsePlainText(cfg), "Disable markdown rendering")
	flags.BoolVar(&args.Debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "models",
		Short: "List the models offered by the provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			ran = true
			args.Action = ActionListModels
			return nil
		},
	})

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Read or change stored settings",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:       "get <key>",
		Short:     "Print a setting",
		Args:      cobra.ExactArgs(1),
		ValidArgs: config.Keys(),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			ran = true
			args.Action = ActionConfigGet
			args.ConfigKey = cmdArgs[0]
			return nil
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting (" + strings.Join(config.Keys(), ", ") + ")",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			ran = true
			args.Action = ActionConfigSet
			args.ConfigKey = cmdArgs[0]
			args.ConfigValue = cmdArgs[1]
			return nil
		},
	})
	rootCmd.AddCommand(configCmd)

	// Add predefined commands
	for name, prompt := range cfg.Prompts {
		if reservedCommands[name] {
			continue
		}
		cmdPrompt := prompt // Create a local copy for the closure
		cmd := &cobra.Command{
			Use:   name + " [vacancy-url|file]",
			Short: summarizePrompt(cmdPrompt.Prompt),
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, cmdArgs []string) error {
				ran = true
				args.Command = name
				if len(cmdArgs) > 0 {
					args.Source = cmdArgs[0]
				}
				args.Instructions = append(args.Instructions, cmdPrompt.Prompt)
				if cmdPrompt.Model != "" && !cmd.Flags().Changed("model") {
					args.Model = cmdPrompt.Model
				}
				return nil
			},
		}
		rootCmd.AddCommand(cmd)
	}

	// Execute the command
	if err := rootCmd.Execute(); err != nil {
		return Arguments{}, err
	}
	if !ran {
		return Arguments{}, ErrHelp
	}

	if args.Action != ActionGenerate {
		return args, nil
	}

	if args.Source == "" {
		page, ok, err := readStdin()
		if err != nil {
			return Arguments{}, err
		}
		if ok {
			args.Page = page
		}
	}

	if args.Source == "" && args.Page == "" {
		return Arguments{}, errors.New("no vacancy provided: pass a URL, an HTML file or pipe a page on stdin")
	}

	return args, nil
}

// shouldUsePlainText determines if plain text output should be used based on environment and terminal settings.
func shouldUsePlainText(cfg config.Config) bool {
	// Check if the rendering format is set to plain
	if cfg.Render.Format == "plain" {
		return true
	}

	// Check if output is being redirected
	if fileInfo, _ := os.Stdout.Stat(); fileInfo != nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			return true
		}
	}

	// Check for NO_COLOR environment variable
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return true
	}

	// Check for TERM=dumb
	if term := os.Getenv("TERM"); term == "dumb" {
		return true
	}

	return false
}

func summarizePrompt(prompt string) string {
	// Trim and limit the length of the prompt summary
	summary := strings.TrimSpace(prompt)
	if r := []rune(summary); len(r) > 60 {
		summary = string(r[:57]) + "..."
	}
	return summary
}
