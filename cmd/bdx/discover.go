package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescp17/bdx/api"
	"github.com/rescp17/bdx/internal/util"
	"github.com/rescp17/bdx/pkg/discovery"
	"github.com/rescp17/bdx/pkg/transfer"
)

func newDiscoverCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List BDX responders on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			var services []discovery.ServiceInfo
			adapter := &discovery.MDNSAdapter{}
			for result := range adapter.Discover(ctx, discovery.ServiceName(discovery.DefaultServerType, discovery.DefaultDomain)) {
				if result.Error != nil {
					return result.Error
				}
				services = result.Services
			}

			if len(services) == 0 {
				fmt.Println("No responders found.")
				return nil
			}
			rows := [][]string{{"NAME", "URL", "VERSION", "MAX BLOCK", "MODES"}}
			for _, svc := range services {
				rows = append(rows, []string{
					svc.Name,
					svc.URL(),
					strconv.Itoa(svc.Version()),
					svc.Text[discovery.TxtMaxBlockSize],
					svc.Text[discovery.TxtModes],
				})
			}
			fmt.Print(util.Table(rows))
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 3*time.Second, "How long to browse")
	return cmd
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <http-url> [transfer-id]",
		Short: "Show the transfers a responder tracks",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(args[0])
			if len(args) == 2 {
				status, err := client.GetTransfer(cmd.Context(), args[1])
				if err != nil {
					return err
				}
				fmt.Print(util.Table(append(statusHeader(), statusRow(status))))
				if status.LastError != "" {
					fmt.Printf("\nlast error: %s\n", status.LastError)
				}
				return nil
			}

			list, err := client.ListTransfers(cmd.Context())
			if err != nil {
				return err
			}
			rows := statusHeader()
			for _, status := range list.Transfers {
				rows = append(rows, statusRow(status))
			}
			fmt.Print(util.Table(rows))
			o := list.Overall
			fmt.Printf("\n%d transfers: %d active, %d completed, %d failed, %d cancelled; %s of %s\n",
				o.TotalTransfers, o.ActiveTransfers, o.CompletedTransfers, o.FailedTransfers, o.CancelledTransfers,
				util.FormatSize(o.BytesTransferred), util.FormatSize(o.TotalBytes))
			return nil
		},
	}
	return cmd
}

func statusHeader() [][]string {
	return [][]string{{"ID", "FILE", "ROLE", "STATE", "PROGRESS", "PEER"}}
}

func statusRow(s *transfer.TransferStatus) []string {
	return []string{
		s.ID,
		s.FileDesignator,
		s.Role,
		s.State.String(),
		fmt.Sprintf("%.1f%% of %s", s.GetProgressPercentage(), util.FormatSize(s.TotalBytes)),
		s.Peer,
	}
}
