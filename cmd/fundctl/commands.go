package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/betbot/sharefund/pkg/sdk/fundclient"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show fund equity, share price and parameters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		st, err := newClient().Fund(ctx)
		if err != nil {
			return err
		}
		return output(st, func() {
			rows := [][2]string{
				{"account", st.Account.Hex()},
				{"asset", fmt.Sprintf("%s (decimals %d)", st.Asset.Hex(), st.Decimals)},
				{"strategy", st.Strategy},
				{"equity", st.Equity.Display},
				{"  on hand", st.OnHand.Display},
				{"  in venue", st.InVenue.Display},
				{"total shares", st.TotalShares.Display},
				{"share price", st.SharePrice.Display},
				{"last share price", st.LastSharePrice.Display},
				{"min investment", st.MinInvestment.Display},
				{"buy / sell fee", fmt.Sprintf("%d / %d bps", st.BuyFeeBps, st.SellFeeBps)},
				{"fee collector", st.FeeCollector.Hex()},
				{"owner", st.Owner.Hex()},
			}
			if st.Receipt != "" {
				rows = append(rows, [2]string{"receipt", st.Receipt})
			}
			printKV(rows)
		})
	},
}

var holderCmd = &cobra.Command{
	Use:   "holder <address>",
	Short: "Show a holder's shares and their current value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		h, err := newClient().Holder(ctx, args[0])
		if err != nil {
			return err
		}
		return output(h, func() {
			printKV([][2]string{
				{"holder", h.Holder.Hex()},
				{"shares", h.Shares.Display},
				{"value", h.Value.Display},
			})
		})
	},
}

var buyCmd = &cobra.Command{
	Use:   "buy <holder> <amount>",
	Short: "Deposit asset units (decimal, e.g. 12.5) and mint shares",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		res, err := newClient().Buy(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return output(res, func() {
			printKV([][2]string{
				{"amount", res.Amount.Display},
				{"fee", res.Fee.Display},
				{"equity change", res.EquityChange.Display},
				{"shares minted", res.SharesMinted.Display},
				{"share price", res.SharePrice.Display},
			})
		})
	},
}

var sellCmd = &cobra.Command{
	Use:   "sell <holder> <shares>",
	Short: "Burn shares and receive their value minus the sell fee",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		res, err := newClient().Sell(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return output(res, func() {
			printKV([][2]string{
				{"shares burned", res.SharesBurned.Display},
				{"amount to pay", res.AmountToPay.Display},
				{"fee", res.Fee.Display},
				{"amount paid", res.AmountPaid.Display},
				{"share price", res.SharePrice.Display},
			})
		})
	},
}

var (
	eventsType   string
	eventsHolder string
	eventsLimit  int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List journaled fund events, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		events, err := newClient().Events(ctx, fundclient.EventQuery{Type: eventsType, Holder: eventsHolder, Limit: eventsLimit})
		if err != nil {
			return err
		}
		return output(events, func() {
			for _, ev := range events {
				fmt.Printf("%s  %-13s %-42s %s\n", ev.TS.Local().Format(time.DateTime), ev.Type, ev.Holder, string(ev.Payload))
			}
		})
	},
}

var snapshotsLimit int

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List recorded equity snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		snaps, err := newClient().EquitySnapshots(ctx, snapshotsLimit)
		if err != nil {
			return err
		}
		return output(snaps, func() {
			for _, s := range snaps {
				fmt.Printf("%s  equity=%s price=%s shares=%s\n", s.TS.Local().Format(time.DateTime), s.Equity, s.SharePrice, s.TotalShares)
			}
		})
	},
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Owner-only parameter changes (requires --admin-key)",
}

var adminFeeCmd = &cobra.Command{
	Use:   "fee <buy|sell> <bps>",
	Short: "Set the buy or sell fee in basis points (max 1000)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] != "buy" && args[0] != "sell" {
			return fmt.Errorf("fee kind must be buy or sell, got %q", args[0])
		}
		bps, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid bps %q", args[1])
		}
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		return newClient().SetFee(ctx, args[0], bps)
	},
}

var adminMinCmd = &cobra.Command{
	Use:   "min-investment <amount>",
	Short: "Set the minimum buy amount",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		return newClient().SetMinInvestment(ctx, args[0])
	},
}

var adminCollectorCmd = &cobra.Command{
	Use:   "fee-collector <address>",
	Short: "Set the fee collector address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		return newClient().SetFeeCollector(ctx, args[0])
	},
}

var adminOwnerCmd = &cobra.Command{
	Use:   "transfer-ownership <address>",
	Short: "Hand the owner role to another address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		return newClient().TransferOwnership(ctx, args[0])
	},
}

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Faucet helpers, only available when fundd runs in sim mode",
}

var simMintCmd = &cobra.Command{
	Use:   "mint <holder> <amount>",
	Short: "Mint asset to a holder and approve the fund for it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		return newClient().SimMint(ctx, args[0], args[1])
	},
}

var simAccrueCmd = &cobra.Command{
	Use:   "accrue <bps>",
	Short: "Grow the simulated lending pool index by bps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bps, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid bps %q", args[0])
		}
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		return newClient().SimAccrue(ctx, bps)
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "filter by event type (deposit, withdrawal, param_changed, venue)")
	eventsCmd.Flags().StringVar(&eventsHolder, "holder", "", "filter by holder address")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "max events")
	snapshotsCmd.Flags().IntVar(&snapshotsLimit, "limit", 20, "max snapshots")

	adminCmd.AddCommand(adminFeeCmd, adminMinCmd, adminCollectorCmd, adminOwnerCmd)
	simCmd.AddCommand(simMintCmd, simAccrueCmd)
}
