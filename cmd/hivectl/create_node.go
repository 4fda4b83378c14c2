package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hivedb/hivedb/internal/hiverouter"
	"github.com/hivedb/hivedb/internal/hivestore"
)

func newCreateNodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-node HIVE_URI DIMENSION_NAME NODE_NAME NODE_URI",
		Short: "Register a node under an existing dimension",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 4 {
				return &argumentError{err: errWrongArgCount(
					"create-node", "HIVE_URI DIMENSION_NAME NODE_NAME NODE_URI", 4, len(args))}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			hiveURI, dimensionName, nodeName, nodeURI := args[0], args[1], args[2], args[3]

			ctx := cmd.Context()
			hive, err := hivestore.Open(ctx, hiveURI)
			if err != nil {
				return err
			}
			defer hive.Engine.Dispose()

			dimensionID, _, err := hivestore.LookupDimension(ctx, hive, dimensionName)
			if err != nil {
				return err
			}

			r := hiverouter.New()
			id, err := r.CreateNode(ctx, hive, dimensionID, nodeName, nodeURI)
			if err != nil {
				return err
			}
			cmd.Printf("node %q created (id=%s) under dimension %q\n", nodeName, strconv.FormatInt(id, 10), dimensionName)
			return nil
		},
	}
}
