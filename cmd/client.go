/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/venuely/apiserver/config"
	"github.com/venuely/apiserver/internal/client/api"
	"github.com/venuely/apiserver/internal/client/kv"
	"golang.org/x/term"
)

// readPassword and isTerminal are test seams for the x/term calls.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

var stdin = bufio.NewReader(os.Stdin)

// clientEnv bundles what the client commands share. Close releases the
// session database.
type clientEnv struct {
	api   *api.Client
	store *kv.SQLite
}

func openClientEnv(ctx context.Context) (*clientEnv, error) {
	cfg := config.LoadClientConfig()
	store, err := kv.OpenSQLite(ctx, cfg.SessionDB)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &clientEnv{api: api.New(cfg.APIURL), store: store}, nil
}

func (e *clientEnv) Close() error {
	return e.store.Close()
}

// withClient runs fn with an opened client environment.
func withClient(fn func(cmd *cobra.Command, args []string, env *clientEnv) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		env, err := openClientEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()
		return fn(cmd, args, env)
	}
}

// flagOrPrompt returns the flag value, asking on the terminal when empty.
func flagOrPrompt(w io.Writer, value, prompt string) (string, error) {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), nil
	}
	if _, err := fmt.Fprintf(w, "%s: ", prompt); err != nil {
		return "", err
	}
	line, err := stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return flagOrPrompt(w, "", "Password")
	}
	if _, err := fmt.Fprint(w, "Password: "); err != nil {
		return "", err
	}
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// describeError turns API failures into a line for the terminal.
func describeError(action string, err error) error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return fmt.Errorf("%s: %s", action, apiErr.Message)
	}
	return fmt.Errorf("%s: %w", action, err)
}
