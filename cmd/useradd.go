package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"calendar/auth"
	"calendar/db"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword reads from the terminal without echo; replaced in tests.
var readPassword = term.ReadPassword

func newUseraddCmd(opts *rootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "useradd <username>",
		Short: "Create an account",
		Long: `Create an account in the configured user store.

The password is taken from --password, prompted for on a terminal, or read
as one line from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			if password == "" {
				password, err = promptPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}

			docs, err := db.Open(cfg)
			if err != nil {
				return err
			}
			defer docs.Close()

			svc := auth.NewService(db.NewUserStore(docs), cfg.BcryptCost, logger)
			if err := svc.Register(cmd.Context(), args[0], password, password); err != nil {
				return fmt.Errorf("add user %q: %w", args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "user %s created\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password for the new account")
	return cmd
}

func promptPassword(in io.Reader, w io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(w, "Password: ")
		first, err := readPassword(int(f.Fd()))
		fmt.Fprintln(w)
		if err != nil {
			return "", err
		}
		fmt.Fprint(w, "Confirm password: ")
		second, err := readPassword(int(f.Fd()))
		fmt.Fprintln(w)
		if err != nil {
			return "", err
		}
		if string(first) != string(second) {
			return "", auth.ErrPasswordMismatch
		}
		return string(first), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
