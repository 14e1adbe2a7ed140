package cmd

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bacalhau-project/fridge/pkg/storage"
	"github.com/bacalhau-project/fridge/pkg/table"
)

const defaultUploadConcurrency = 4

func newObjectCmd(a *app) *cobra.Command {
	objectCmd := &cobra.Command{
		Use:   "object",
		Short: "Object operations",
	}
	objectCmd.AddCommand(
		newObjectPutCmd(a),
		newObjectGetCmd(a),
		newObjectExistsCmd(a),
		newObjectDeleteCmd(a),
	)
	return objectCmd
}

func newObjectPutCmd(a *app) *cobra.Command {
	var (
		prefix      string
		contentType string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "put BUCKET FILE...",
		Short: "Upload files; each is stored under PREFIX/<file name>",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.newStorageClient(cmd.Context())
			if err != nil {
				return err
			}
			return putFiles(cmd.Context(), client, cmd.OutOrStdout(), args[0], args[1:], prefix, contentType, concurrency)
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "key prefix")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (default: derived from the file extension)")
	cmd.Flags().IntVar(&concurrency, "concurrency", defaultUploadConcurrency, "number of concurrent uploads")
	return cmd
}

type putOutcome struct {
	res *storage.Result
	err error
}

// putFiles uploads files concurrently and reports every outcome. It returns the first
// failure after all uploads have finished.
func putFiles(
	ctx context.Context,
	client *storage.Client,
	out io.Writer,
	bucket string,
	files []string,
	prefix, contentType string,
	concurrency int,
) error {
	outcomes := make([]putOutcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, file := range files {
		g.Go(func() error {
			res, err := putFile(gctx, client, bucket, file, prefix, contentType)
			outcomes[i] = putOutcome{res: res, err: err}
			return err
		})
	}
	firstErr := g.Wait()

	rt := table.NewResultTable(out)
	for i, file := range files {
		rt.AddResult(file, outcomes[i].res, outcomes[i].err)
	}
	rt.Render()
	return firstErr
}

func putFile(ctx context.Context, client *storage.Client, bucket, file, prefix, contentType string) (*storage.Result, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(file))
	}
	key := filepath.Base(file)
	if prefix != "" {
		key = path.Join(prefix, key)
	}
	return client.PutObject(ctx, bucket, key, f, contentType)
}

func newObjectGetCmd(a *app) *cobra.Command {
	var (
		version string
		output  string
	)
	cmd := &cobra.Command{
		Use:   "get BUCKET KEY",
		Short: "Download an object to a file or stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.newStorageClient(cmd.Context())
			if err != nil {
				return err
			}
			ref := storage.ObjectRef{Bucket: args[0], Key: args[1], VersionID: version}
			toFile := output != "" && output != "-"
			filename := ""
			if toFile {
				filename = filepath.Base(output)
			}
			obj, err := client.GetObject(cmd.Context(), ref, filename)
			if err != nil {
				return err
			}
			defer obj.Close()

			var w io.Writer = cmd.OutOrStdout()
			if toFile {
				f, err := os.OpenFile(output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			n, err := io.Copy(w, obj.Body)
			if err != nil {
				return fmt.Errorf("failed to download %s/%s: %w", ref.Bucket, ref.Key, err)
			}
			a.l.Debugf("Downloaded %d bytes from %s/%s", n, ref.Bucket, ref.Key)
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "object version")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")
	return cmd
}

func newObjectExistsCmd(a *app) *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "exists BUCKET KEY",
		Short: "Report whether an object exists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.newStorageClient(cmd.Context())
			if err != nil {
				return err
			}
			exists, err := client.ObjectExists(cmd.Context(), storage.ObjectRef{Bucket: args[0], Key: args[1], VersionID: version})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatBool(exists))
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "object version")
	return cmd
}

func newObjectDeleteCmd(a *app) *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "delete BUCKET KEY",
		Short: "Delete an object if it exists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.newStorageClient(cmd.Context())
			if err != nil {
				return err
			}
			res, err := client.DeleteObject(cmd.Context(), storage.ObjectRef{Bucket: args[0], Key: args[1], VersionID: version})

			rt := table.NewResultTable(cmd.OutOrStdout())
			rt.AddResult(args[1], res, err)
			rt.Render()
			return err
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "object version")
	return cmd
}
