package main

import (
	"github.com/spf13/cobra"

	"github.com/hivedb/hivedb/internal/hiverouter"
)

func newCreateHiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-hive HIVE_URI",
		Short: "Create (or open) the hive metadata database at HIVE_URI",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return &argumentError{err: errWrongArgCount("create-hive", "HIVE_URI", 1, len(args))}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			r := hiverouter.New()
			h, err := r.CreateHive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer h.Engine.Dispose()
			cmd.Printf("hive ready: %s\n", args[0])
			return nil
		},
	}
}
