package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	gocid "github.com/ipfs/go-cid"
	"github.com/spf13/cobra"
	"github.com/systemshift/memex-object/internal/dag"
	"github.com/systemshift/memex-object/internal/object"
)

func newNewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "new [template]",
		Short: "Create a node from a daemon template (empty or unixfs-dir)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			template := object.TemplateEmpty
			if len(args) == 1 {
				template = args[0]
			}
			n, err := a.store.Create(cmd.Context(), object.FromTemplate(template))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n.Cid())
			return nil
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <cid>",
		Short: "Fetch a node and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := dag.ParseCID(args[0])
			if err != nil {
				return err
			}
			n, err := a.store.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printNode(cmd.OutOrStdout(), n, a.settings.DataEncoding)
		},
	}
}

func newBlockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "block <cid>",
		Short: "Fetch a node as a verified raw block and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := dag.ParseCID(args[0])
			if err != nil {
				return err
			}
			n, err := a.store.Block(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printNode(cmd.OutOrStdout(), n, dag.DataEncodingBase64)
		},
	}
}

func newPutCmd(a *app) *cobra.Command {
	var links []string
	cmd := &cobra.Command{
		Use:   "put [file]",
		Short: "Store a node whose data is read from file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			ls := make([]dag.Link, 0, len(links))
			for _, lf := range links {
				l, err := resolveLink(cmd, a.store, lf)
				if err != nil {
					return err
				}
				ls = append(ls, l)
			}
			n, err := a.store.Create(cmd.Context(), object.FromContent(data, ls))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n.Cid())
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&links, "link", nil, "link as name=cid, repeatable, kept in order")
	return cmd
}

func newDataCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "data <cid>",
		Short: "Write a node's data to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := dag.ParseCID(args[0])
			if err != nil {
				return err
			}
			return a.store.ReadData(cmd.Context(), id, func(r io.Reader) error {
				_, err := io.Copy(cmd.OutOrStdout(), r)
				return err
			})
		},
	}
}

func newLinksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "links <cid>",
		Short: "List a node's links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := dag.ParseCID(args[0])
			if err != nil {
				return err
			}
			links, err := a.store.Links(cmd.Context(), id)
			if err != nil {
				return err
			}
			for _, l := range links {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d %s\n", l.Cid, l.Size, l.Name)
			}
			return nil
		},
	}
}

func newStatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <cid>",
		Short: "Print the daemon's size summary of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := dag.ParseCID(args[0])
			if err != nil {
				return err
			}
			st, err := a.store.Stat(cmd.Context(), id)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "NumLinks:       %d\n", st.LinkCount)
			fmt.Fprintf(w, "BlockSize:      %d\n", st.BlockSize)
			fmt.Fprintf(w, "LinksSize:      %d\n", st.LinkSize)
			fmt.Fprintf(w, "DataSize:       %d\n", st.DataSize)
			fmt.Fprintf(w, "CumulativeSize: %d\n", st.CumulativeSize)
			return nil
		},
	}
}

func newDiffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <cid-a> <cid-b>",
		Short: "List the changes that turn one DAG into another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseCIDs(args...)
			if err != nil {
				return err
			}
			changes, err := a.store.Diff(cmd.Context(), ids[0], ids[1])
			if err != nil {
				return err
			}
			for _, c := range changes {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}

type nodeJSON struct {
	Cid   string     `json:"Cid"`
	Data  any        `json:"Data,omitempty"`
	Links []linkJSON `json:"Links"`
}

type linkJSON struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size uint64 `json:"Size"`
}

func printNode(w io.Writer, n *dag.Node, enc dag.DataEncoding) error {
	out := nodeJSON{Cid: n.Cid().String(), Links: []linkJSON{}}
	if n.HasData() {
		if enc == dag.DataEncodingBase64 {
			out.Data = n.Data()
		} else {
			out.Data = string(n.Data())
		}
	}
	for _, l := range n.Links() {
		out.Links = append(out.Links, linkJSON{Name: l.Name, Hash: l.Cid.String(), Size: l.Size})
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(out)
}

// readInput reads the file named by args[0], or stdin when there is no
// argument or it is "-".
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

func openInput(cmd *cobra.Command, args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(args[0])
}

// resolveLink turns name=cid into a link sized by the target's cumulative
// size.
func resolveLink(cmd *cobra.Command, s *object.Store, flag string) (dag.Link, error) {
	name, target, ok := strings.Cut(flag, "=")
	if !ok {
		return dag.Link{}, fmt.Errorf("link %q: want name=cid", flag)
	}
	c, err := dag.ParseCID(target)
	if err != nil {
		return dag.Link{}, err
	}
	st, err := s.Stat(cmd.Context(), c)
	if err != nil {
		return dag.Link{}, fmt.Errorf("link %q: %w", name, err)
	}
	return dag.NewLink(name, c, uint64(max(st.CumulativeSize, 0))), nil
}

func parseCIDs(args ...string) ([]gocid.Cid, error) {
	out := make([]gocid.Cid, 0, len(args))
	for _, s := range args {
		c, err := dag.ParseCID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
