package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hivedb/hivedb/internal/hiverouter"
	"github.com/hivedb/hivedb/internal/hiveschema"
	"github.com/hivedb/hivedb/internal/hivestore"
)

func newCreateDimensionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-dimension HIVE_URI DIMENSION_NAME DB_TYPE [DIRECTORY_URI]",
		Short: "Create the directory table and register a dimension",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 3 && len(args) != 4 {
				return &argumentError{err: errWrongArgCount(
					"create-dimension", "HIVE_URI DIMENSION_NAME DB_TYPE [DIRECTORY_URI]", 3, len(args))}
			}
			if _, err := hiveschema.ParseDBType(args[2]); err != nil {
				return &argumentError{err: err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			hiveURI, dimensionName := args[0], args[1]
			dbType, err := hiveschema.ParseDBType(args[2])
			if err != nil {
				return err
			}

			directoryURI := hiveURI
			if len(args) == 4 {
				directoryURI = args[3]
			} else if v := viper.GetString("directory_uri"); v != "" {
				directoryURI = v
			}

			ctx := cmd.Context()
			r := hiverouter.New()

			if err := r.CreatePrimaryIndex(ctx, directoryURI, dimensionName, dbType); err != nil {
				return err
			}

			hive, err := hivestore.Open(ctx, hiveURI)
			if err != nil {
				return err
			}
			defer hive.Engine.Dispose()

			id, err := r.CreateDimension(ctx, hive, dimensionName, directoryURI, dbType)
			if err != nil {
				return err
			}
			cmd.Printf("dimension %q created (id=%d)\n", dimensionName, id)
			return nil
		},
	}
}
