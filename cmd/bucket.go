package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bacalhau-project/fridge/pkg/table"
)

func newBucketCmd(a *app) *cobra.Command {
	bucketCmd := &cobra.Command{
		Use:   "bucket",
		Short: "Bucket operations",
	}

	var versioning bool
	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a bucket if it does not exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.newStorageClient(cmd.Context())
			if err != nil {
				return err
			}
			res, err := client.CreateBucket(cmd.Context(), args[0], versioning)

			rt := table.NewResultTable(cmd.OutOrStdout())
			rt.AddResult(args[0], res, err)
			rt.Render()
			return err
		},
	}
	createCmd.Flags().BoolVar(&versioning, "versioning", false, "enable object versioning")

	bucketCmd.AddCommand(createCmd)
	return bucketCmd
}
