package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/kingctan/sharedpainter/internal/config"
	"github.com/kingctan/sharedpainter/pkg/protocol"
	"github.com/kingctan/sharedpainter/pkg/snapshot"
	"github.com/spf13/cobra"
)

func snapshotCmd(configPath *string) *cobra.Command {
	var storeURL string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage saved drawings",
		Long: `Manage drawings saved in the snapshot store.

The store is taken from the configuration unless --store is given.
Supported stores: memory://, file://dir, bolt://file, redis://...,
postgres://... and s3://bucket/prefix.

Examples:
  sharedpaint snapshot list
  sharedpaint snapshot export autosave drawing.sp
  sharedpaint snapshot import drawing.sp monday
  sharedpaint snapshot inspect drawing.sp`,
	}
	cmd.PersistentFlags().StringVar(&storeURL, "store", "", "Snapshot store URL (default from config)")

	open := func(ctx context.Context) (snapshot.Store, error) {
		if storeURL == "" {
			cfg, err := config.LoadOrNew(*configPath)
			if err != nil {
				return nil, err
			}
			storeURL = cfg.Snapshot.Store
		}
		return snapshot.Open(ctx, storeURL)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved drawings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := open(cmd.Context())
				if err != nil {
					return err
				}
				defer store.Close()
				names, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "export NAME FILE",
			Short: "Write a saved drawing to a file",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := open(cmd.Context())
				if err != nil {
					return err
				}
				defer store.Close()
				blob, err := store.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := os.WriteFile(args[1], blob, 0644); err != nil {
					return err
				}
				success("Exported %s (%d bytes)", args[0], len(blob))
				return nil
			},
		},
		&cobra.Command{
			Use:   "import FILE NAME",
			Short: "Save a drawing file to the store",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				blob, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				if _, _, err := protocol.ParseBlob(blob); err != nil {
					return fmt.Errorf("%s is not a drawing: %w", args[0], err)
				}
				store, err := open(cmd.Context())
				if err != nil {
					return err
				}
				defer store.Close()
				if err := store.Save(cmd.Context(), args[1], blob); err != nil {
					return err
				}
				success("Imported %s as %s", args[0], args[1])
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete a saved drawing",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := open(cmd.Context())
				if err != nil {
					return err
				}
				defer store.Close()
				return store.Delete(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "inspect FILE",
			Short: "Summarize a drawing file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				blob, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				return inspect(cmd.OutOrStdout(), blob)
			},
		},
	)
	return cmd
}

// inspect prints the version and a per-message count of a state blob.
func inspect(w io.Writer, blob []byte) error {
	v, packets, err := protocol.ParseBlob(blob)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "app %s, protocol %s, %d packets\n", v.AppVersion, v.ProtocolVersion, len(packets))

	counts := make(map[protocol.Code]int)
	for _, p := range packets {
		counts[p.Code]++
		if p.Code == protocol.CodeHistoryUserList {
			if m, err := protocol.DecodeHistoryUserList(p.Body); err == nil {
				for _, u := range m.Users {
					fmt.Fprintf(w, "  painter %s (%s)\n", u.NickName, u.ID)
				}
			}
		}
	}
	codes := make([]protocol.Code, 0, len(counts))
	for c := range counts {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	for _, c := range codes {
		fmt.Fprintf(w, "  %-22s %d\n", c.String(), counts[c])
	}
	return nil
}
