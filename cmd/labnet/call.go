package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// withBackend opens the backend for one command and closes it afterwards.
func withBackend(cmd *cobra.Command, fn func(ctx context.Context, b backend) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	out, err := fn(ctx, b)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseKV turns key=value words into call arguments. The value may itself
// contain '='.
func parseKV(words []string) (map[string]string, error) {
	args := make(map[string]string, len(words))
	for _, w := range words {
		k, v, ok := strings.Cut(w, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("argument %q is not key=value", w)
		}
		if _, dup := args[k]; dup {
			return nil, fmt.Errorf("argument %q given twice", k)
		}
		args[k] = v
	}
	return args, nil
}

func newCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <module> <function> [key=value...]",
		Short: "Run a module function",
		Example: `  labnet call netreserve add_network net_addr=10.0.0.0/24 description=lab switch=sw0
  labnet call dns add_server ip_addr=10.0.0.2 description=root domain=.
  labnet --url http://127.0.0.1:5051 --user admin --password pw call dns list_servers`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, words []string) error {
			args, err := parseKV(words[2:])
			if err != nil {
				return err
			}
			return withBackend(cmd, func(ctx context.Context, b backend) (any, error) {
				return b.Run(ctx, words[0], words[1], args)
			})
		},
	}
}

func newModulesCmd() *cobra.Command {
	var names bool
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Show the module catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, func(ctx context.Context, b backend) (any, error) {
				cat, err := b.Catalog(ctx)
				if err != nil || !names {
					return cat, err
				}
				list := make([]string, 0, len(cat))
				for name := range cat {
					list = append(list, name)
				}
				sort.Strings(list)
				return list, nil
			})
		},
	}
	cmd.Flags().BoolVar(&names, "names", false, "Print module names only")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show every stateful resource and its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, func(ctx context.Context, b backend) (any, error) {
				return b.ListAll(ctx)
			})
		},
	}
}

func newSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <name>",
		Short: "Save the state of every resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, b backend) (any, error) {
				return b.Save(ctx, args[0])
			})
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <name>",
		Short: "Start or stop resources to match a save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, b backend) (any, error) {
				return b.Restore(ctx, args[0])
			})
		},
	}
}
