/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/bookfinder/apiserver/config"
	"github.com/bookfinder/apiserver/internal/notify"
	"github.com/bookfinder/apiserver/internal/storage"
	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage email templates in object storage",
}

var templatesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload the built-in email templates to the template bucket",
	Long: `Uploads the built-in templates to templates/<name>.tmpl in the
configured bucket, overwriting existing copies. Edit them there to
customize emails without a redeploy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		objects, err := storage.Open(cmd.Context(), cfg.Storage)
		if err != nil {
			return err
		}
		if objects == nil {
			return errors.New("STORAGE_BACKEND must be minio or gcs")
		}

		keys, err := notify.UploadDefaults(cmd.Context(), objects)
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s/%s\n", objects.Bucket(), key)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesSyncCmd)
}
