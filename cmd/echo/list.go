package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ent0n29/echo/internal/agents"
	"github.com/ent0n29/echo/internal/elevenlabs"
)

func newVoicesCmd(flags *rootFlags) *cobra.Command {
	var clonedOnly bool
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the account's voices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := flags.load(cmd)
			if err != nil {
				return err
			}
			client := elevenlabs.NewClient(elevenlabs.Config{
				APIKey:     cfg.ElevenLabsAPIKey,
				APIBaseURL: cfg.ElevenLabsAPIBaseURL,
			})
			voices, err := client.ListVoices(cmd.Context())
			if err != nil {
				return err
			}
			return writeVoices(cmd.OutOrStdout(), voices, clonedOnly)
		},
	}
	cmd.Flags().BoolVar(&clonedOnly, "cloned", false, "only show cloned voices")
	return cmd
}

func newAgentsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the account's conversational agents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := flags.load(cmd)
			if err != nil {
				return err
			}
			client := elevenlabs.NewClient(elevenlabs.Config{
				APIKey:     cfg.ElevenLabsAPIKey,
				APIBaseURL: cfg.ElevenLabsAPIBaseURL,
			})
			list, err := client.ListAgents(cmd.Context())
			if err != nil {
				return err
			}
			return writeAgents(cmd.OutOrStdout(), list)
		},
	}
}

func writeVoices(out io.Writer, voices []elevenlabs.Voice, clonedOnly bool) error {
	sort.SliceStable(voices, func(i, j int) bool {
		return strings.ToLower(voices[i].Name) < strings.ToLower(voices[j].Name)
	})
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VOICE ID\tNAME\tCATEGORY")
	for _, v := range voices {
		if clonedOnly && v.Category != "cloned" {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", v.VoiceID, v.Name, v.Category)
	}
	return tw.Flush()
}

func writeAgents(out io.Writer, list []agents.Agent) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT ID\tNAME\tCREATED\tLAST CALL")
	for _, a := range list {
		if a.Archived {
			continue
		}
		last := "-"
		if a.LastCallTime != nil {
			last = a.LastCallTime.UTC().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.ID, a.DisplayName, a.CreatedAt.UTC().Format("2006-01-02"), last)
	}
	return tw.Flush()
}
