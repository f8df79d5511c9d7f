package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dovepay/internal/checkout"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func payCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Send an M-Pesa prompt and wait for the payment to complete",
		Long: `Send an STK push to the payer's phone, then poll the portal until the
payment completes, fails, or times out. Ctrl-C stops waiting without
cancelling the prompt on the phone.`,
		Example: "  paycli pay --phone 0712345678 --amount 500",
		RunE:    runPay,
	}
	cmd.Flags().StringP("phone", "p", "", "Payer phone number (07.., 01.., 254.. or 9 digits)")
	cmd.Flags().StringP("amount", "a", "", "Amount in KES (whole shillings)")
	cmd.Flags().Duration("poll-interval", checkout.DefaultPollInterval, "How often to check the payment status")
	cmd.Flags().Duration("timeout", checkout.DefaultTimeout, "Give up waiting after this long")
	_ = cmd.MarkFlagRequired("phone")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func runPay(cmd *cobra.Command, args []string) error {
	client := checkout.NewClient(viper.GetString("server"), viper.GetDuration("http-timeout"))
	session := checkout.NewSession(client,
		checkout.WithPollInterval(viper.GetDuration("poll-interval")),
		checkout.WithTimeout(viper.GetDuration("timeout")),
		checkout.WithOnChange(func(s checkout.Snapshot) { printSnapshot(cmd, s) }),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Start(context.Background(), viper.GetString("phone"), viper.GetString("amount")); err != nil {
		return err
	}
	final, err := session.Wait(ctx)
	if errors.Is(err, context.Canceled) {
		session.Cancel()
		_, _ = session.Wait(context.Background())
		fmt.Fprintln(cmd.OutOrStdout(), "Stopped waiting. The prompt on the phone may still be active.")
		return nil
	}
	if final.State == checkout.StateFailed {
		return errors.New(final.Message)
	}
	return nil
}

func printSnapshot(cmd *cobra.Command, s checkout.Snapshot) {
	out := cmd.OutOrStdout()
	switch s.State {
	case checkout.StateSending:
		fmt.Fprintln(out, "Sending payment request...")
	case checkout.StateWaiting:
		fmt.Fprintf(out, "Check your phone and enter your M-Pesa PIN. Reference: %s\n", s.Reference)
	case checkout.StateSuccess:
		fmt.Fprintf(out, "Payment successful. Reference: %s Receipt: %s\n", s.Reference, s.Receipt)
	case checkout.StateFailed:
		fmt.Fprintf(out, "Payment failed: %s\n", s.Message)
	case checkout.StateIdle:
		fmt.Fprintln(out, "Cancelled.")
	}
}
