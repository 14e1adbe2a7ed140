package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/bacalhau-project/fridge/pkg/credentials"
	"github.com/bacalhau-project/fridge/pkg/logger"
	"github.com/bacalhau-project/fridge/pkg/table"
)

func newCredentialsCmd(a *app) *cobra.Command {
	credentialsCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Inspect storage credentials",
	}
	credentialsCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Bootstrap credentials and show their masked details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := a.newManager(cmd.Context())
			if err != nil {
				return err
			}
			kv := table.NewKeyValueTable(cmd.OutOrStdout())
			describeManager(kv, mgr, a.mode(), time.Now())
			kv.Render()
			return nil
		},
	})
	return credentialsCmd
}

func (a *app) mode() string {
	if a.cfg.HasStaticKeys() {
		return "static"
	}
	return a.cfg.STS.Mode
}

func describeManager(kv *table.KeyValueTable, mgr *credentials.Manager, mode string, now time.Time) {
	creds := mgr.Credentials()
	kv.Add("Mode", mode)
	kv.Add("State", mgr.State().String())
	kv.Add("Access Key", logger.MaskString(creds.AccessKeyID))
	if creds.SessionToken != "" {
		kv.Add("Session Token", logger.MaskString(creds.SessionToken))
	}
	if !creds.Expires.IsZero() {
		kv.Add("Expires", creds.Expires.UTC().Format(time.RFC3339))
	}
	kv.Add("Issued", now.Sub(mgr.IssuedAt()).Round(time.Second).String()+" ago")
	if fp := mgr.Fingerprint(); fp != "" {
		kv.Add("Token", logger.MaskString(fp))
	}
}
