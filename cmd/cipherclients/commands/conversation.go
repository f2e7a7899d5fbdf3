package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"cipherclients/internal/draft"
	"cipherclients/internal/model"
)

func conversationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversation",
		Aliases: []string{"conv"},
		Short:   "Create and inspect conversations",
	}
	cmd.AddCommand(conversationAddCmd(), conversationListCmd(), conversationDraftCmd())
	return cmd
}

func conversationAddCmd() *cobra.Command {
	var with []string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a conversation with other users",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selfUser := appCtx.Objects.SelfUser()
			if selfUser == nil {
				return fmt.Errorf("no self user; run register first")
			}
			participants := []*model.User{selfUser}
			for _, name := range with {
				u, ok := findUser(name)
				if !ok {
					return fmt.Errorf("unknown user %q", name)
				}
				participants = append(participants, u)
			}

			kind := model.ConversationGroup
			if len(participants) == 2 {
				kind = model.ConversationOneToOne
			}
			conv := appCtx.Objects.InsertConversation(uuid.New(), kind, args[0])
			conv.AddParticipants(participants...)
			appCtx.Classifier.AfterTrusted(cmd.Context(), conv, nil)

			if err := appCtx.Objects.Save(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Conversation %s created (%s)\n", conv.ID(), conv.SecurityLevel())
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&with, "with", nil, "names of the other participants")
	return cmd
}

func conversationListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations with their security level",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tLEVEL\tPARTICIPANTS")
			for _, c := range appCtx.Objects.Conversations() {
				names := make([]string, 0, len(c.Participants()))
				for _, u := range c.Participants() {
					names = append(names, u.Name())
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					c.ID(), c.Name(), c.Type(), c.SecurityLevel(), strings.Join(names, ","))
			}
			return tw.Flush()
		},
	}
}

func conversationDraftCmd() *cobra.Command {
	var discard bool
	cmd := &cobra.Command{
		Use:   "draft <conversation-id> [text]",
		Short: "Show or store the draft of a conversation; @name mentions a participant",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("conversation id: %w", err)
			}
			conv, ok := appCtx.Objects.Conversation(id)
			if !ok {
				return fmt.Errorf("unknown conversation %s", id)
			}

			switch {
			case discard:
				draft.Set(conv, nil)
			case len(args) == 2:
				draft.Set(conv, &draft.Message{Text: args[1], Mentions: mentions(conv, args[1])})
			default:
				msg := draft.Get(conv)
				if msg == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "No draft")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg.Text)
				for _, m := range msg.Mentions {
					fmt.Fprintf(cmd.OutOrStdout(), "  @%s at %d+%d\n", m.User.Name(), m.Range.Location, m.Range.Length)
				}
				return nil
			}
			return appCtx.Objects.Save(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&discard, "clear", false, "discard the draft")
	return cmd
}

// mentions finds "@name" words naming a participant of conv. Ranges are in
// characters.
func mentions(conv *model.Conversation, text string) []draft.Mention {
	var out []draft.Mention
	pos := 0
	for _, word := range strings.SplitAfter(text, " ") {
		n := utf8.RuneCountInString(word)
		name := strings.TrimSuffix(word, " ")
		if strings.HasPrefix(name, "@") {
			for _, u := range conv.Participants() {
				if u.Name() == name[1:] {
					out = append(out, draft.Mention{
						Range: draft.Range{Location: pos, Length: utf8.RuneCountInString(name)},
						User:  u,
					})
					break
				}
			}
		}
		pos += n
	}
	return out
}
