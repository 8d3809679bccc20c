package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/systemshift/memex-object/internal/dag"
)

func newPatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Store modified copies of existing nodes",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add-link <base> <name> <child>",
			Short: "Add or replace a named link",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, err := parseCIDs(args[0], args[2])
				if err != nil {
					return err
				}
				n, err := a.store.AddLink(cmd.Context(), ids[0], args[1], ids[1])
				return printCid(cmd, n, err)
			},
		},
		&cobra.Command{
			Use:   "rm-link <base> <name>",
			Short: "Remove the links with the given name",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, err := parseCIDs(args[0])
				if err != nil {
					return err
				}
				n, err := a.store.RmLink(cmd.Context(), ids[0], args[1])
				return printCid(cmd, n, err)
			},
		},
		&cobra.Command{
			Use:   "set-data <base> [file]",
			Short: "Replace a node's data with the contents of file or stdin",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, err := parseCIDs(args[0])
				if err != nil {
					return err
				}
				r, err := openInput(cmd, args[1:])
				if err != nil {
					return err
				}
				defer r.Close()
				n, err := a.store.SetData(cmd.Context(), ids[0], r)
				return printCid(cmd, n, err)
			},
		},
		&cobra.Command{
			Use:   "append-data <base> [file]",
			Short: "Append the contents of file or stdin to a node's data",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, err := parseCIDs(args[0])
				if err != nil {
					return err
				}
				r, err := openInput(cmd, args[1:])
				if err != nil {
					return err
				}
				defer r.Close()
				n, err := a.store.AppendData(cmd.Context(), ids[0], r)
				return printCid(cmd, n, err)
			},
		},
	)
	return cmd
}

func printCid(cmd *cobra.Command, n *dag.Node, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), n.Cid())
	return nil
}
