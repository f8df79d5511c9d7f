package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"dovepay/internal/checkout"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [correlation-id]",
		Short: "Show the current state of a payment",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := checkout.NewClient(viper.GetString("server"), viper.GetDuration("http-timeout"))
	st, err := client.Status(cmd.Context(), args[0])
	if errors.Is(err, checkout.ErrNotFound) {
		fmt.Fprintf(cmd.OutOrStdout(), "No payment found for %s (it may not be recorded yet)\n", args[0])
		return nil
	}
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Status:\t%s\n", st.Status)
	fmt.Fprintf(w, "Reference:\t%s\n", st.Reference)
	fmt.Fprintf(w, "Phone:\t%s\n", st.Phone)
	fmt.Fprintf(w, "Amount:\tKES %s\n", st.Amount)
	if st.Receipt != nil && *st.Receipt != "" {
		fmt.Fprintf(w, "Receipt:\t%s\n", *st.Receipt)
	}
	if st.FailureReason != nil {
		fmt.Fprintf(w, "Reason:\t%s\n", *st.FailureReason)
	}
	fmt.Fprintf(w, "Updated:\t%s\n", st.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	return w.Flush()
}
