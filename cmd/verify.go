package main

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sagebase/sagebase/internal/extraction"
	"github.com/sagebase/sagebase/internal/model"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <entity-type> <entity-id>",
	Short: "Mark an entity as manually verified",
	Long:  "Marks an entity as manually verified so that later extraction results are logged but never applied. Use --unset to clear the flag.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		entityType, err := model.ParseEntityType(args[0])
		if err != nil {
			return err
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || id <= 0 {
			return eris.Errorf("invalid entity id %q", args[1])
		}
		unset, _ := cmd.Flags().GetBool("unset")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := extraction.NewVerifier(st).SetVerified(ctx, entityType, id, !unset); err != nil {
			return err
		}

		state := "verified"
		if unset {
			state = "unverified"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d marked %s.\n", entityType, id, state)
		return nil
	},
}

func init() {
	verifyCmd.Flags().Bool("unset", false, "clear the manual verification flag")
	rootCmd.AddCommand(verifyCmd)
}
