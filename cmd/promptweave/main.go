package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/promptweave/pkg/conversation"
)

var (
	logLevel  string
	assistant bool
	roles     []string
)

var rootCmd = &cobra.Command{
	Use:   "promptweave",
	Short: "Compose structured prompts and conversation sequences",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
		return nil
	},
}

var renderCmd = &cobra.Command{
	Use:   "render <definition.yaml>",
	Short: "Render a YAML sequence definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		def, err := conversation.ParseDefinition(data)
		if err != nil {
			return err
		}
		seq, err := def.Sequencer()
		if err != nil {
			return err
		}

		var filter conversation.Filter
		if len(roles) > 0 {
			wanted := map[conversation.Role]bool{}
			for _, r := range roles {
				wanted[conversation.Role(r)] = true
			}
			filter = func(t conversation.TurnView) bool {
				return wanted[t.Role]
			}
		}

		var out []byte
		if assistant {
			out, err = conversation.ToYAML(seq.BuildForAssistant(filter))
		} else {
			out, err = conversation.ToYAML(seq.Build(filter))
		}
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")
	renderCmd.Flags().BoolVar(&assistant, "assistant", false, "Partition output into context and messages")
	renderCmd.Flags().StringSliceVar(&roles, "role", nil, "Only include turns with these roles")
	rootCmd.AddCommand(renderCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
