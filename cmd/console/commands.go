package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashureev/chatbot-console/internal/domain"
	"github.com/spf13/cobra"
)

// noticeErr turns a component error into the text a user would see.
func noticeErr(err error) error {
	return errors.New(domain.Notice(err))
}

func newAuthCmd(use, short string, mode domain.AuthMode) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("CONSOLE_PASSWORD")
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(a)

			res, err := a.Sessions.Authenticate(cmd.Context(), username, password, mode)
			if err != nil {
				return noticeErr(err)
			}
			if res.Notice != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.Notice)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", username)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (default $CONSOLE_PASSWORD)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(a)

			a.Sessions.Clear(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func printTurns(cmd *cobra.Command, turns []domain.Turn) {
	for _, turn := range turns {
		label := "you"
		if turn.Sender == domain.SenderBot {
			label = "bot"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", label, turn.Text)
	}
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the conversation history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(a)

			turns, err := a.Conversation.LoadHistory(cmd.Context())
			if err != nil {
				if errors.Is(err, domain.ErrNoSession) {
					return errors.New("not logged in")
				}
				return fmt.Errorf("history unavailable: %w", err)
			}
			printTurns(cmd, turns)
			return nil
		},
	}
}

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(a)

			if !a.Sessions.Current().Present() {
				return errors.New("not logged in")
			}
			done, ok := a.Conversation.Send(cmd.Context(), strings.Join(args, " "))
			if !ok {
				return errors.New("message is empty")
			}
			<-done

			turns := a.Conversation.Transcript()
			if n := len(turns); n > 0 {
				printTurns(cmd, turns[n-1:])
			}
			return nil
		},
	}
}

func newWidgetCmd() *cobra.Command {
	widgetCmd := &cobra.Command{
		Use:   "widget",
		Short: "Show or change the embeddable widget",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the widget settings and embed code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(a)

			snap, err := a.Widget.Fetch(cmd.Context())
			if err != nil {
				return noticeErr(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "theme:    %s\n", snap.Config.Theme)
			fmt.Fprintf(out, "position: %s\n", snap.Config.Position)
			if snap.Config.AvatarURL != "" {
				fmt.Fprintf(out, "avatar:   %s\n", snap.Config.AvatarURL)
			}
			fmt.Fprintln(out, snap.EmbedCode)
			return nil
		},
	}

	var theme, position, avatar string
	save := &cobra.Command{
		Use:   "save",
		Short: "Save widget settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(a)

			// Unset flags keep the current values.
			current, err := a.Widget.Fetch(cmd.Context())
			if err != nil {
				return noticeErr(err)
			}
			cfg := current.Config
			if cmd.Flags().Changed("theme") {
				cfg.Theme = theme
			}
			if cmd.Flags().Changed("position") {
				cfg.Position = domain.Position(position)
			}
			if cmd.Flags().Changed("avatar") {
				cfg.AvatarURL = avatar
			}

			msg, err := a.Widget.SaveConfig(cmd.Context(), cfg)
			if err != nil {
				return noticeErr(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			fmt.Fprintln(cmd.OutOrStdout(), a.Widget.Cached().EmbedCode)
			return nil
		},
	}
	save.Flags().StringVar(&theme, "theme", domain.DefaultTheme, "theme color as #rrggbb")
	save.Flags().StringVar(&position, "position", string(domain.DefaultPosition), "bottom-left or bottom-right")
	save.Flags().StringVar(&avatar, "avatar", "", "avatar image URL")

	widgetCmd.AddCommand(show, save)
	return widgetCmd
}

func newDomainCmd() *cobra.Command {
	domainCmd := &cobra.Command{
		Use:   "domain",
		Short: "Manage origins allowed to embed the widget",
	}
	domainCmd.AddCommand(&cobra.Command{
		Use:   "add <origin>",
		Short: "Allow the widget on an origin such as https://shop.example",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(a)

			msg, err := a.Widget.AddDomain(cmd.Context(), args[0])
			if err != nil {
				return noticeErr(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	})
	return domainCmd
}

func newUploadCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Add a text file to the bot's knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			if name == "" {
				name = filepath.Base(args[0])
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(a)

			msg, err := a.Uploader.Upload(cmd.Context(), name, string(data))
			if err != nil {
				return noticeErr(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "filename sent to the service (default: base name of <file>)")
	return cmd
}
