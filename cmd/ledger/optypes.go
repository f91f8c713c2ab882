package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/backoffice-ledger/internal/cli"
	"github.com/Veraticus/backoffice-ledger/internal/engine"
	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/spf13/cobra"
)

var errAmbiguousMappings = errors.New("ambiguous external mappings")

func optypesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "optypes",
		Aliases: []string{"operation-types"},
		Short:   "Manage operation types",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List operation types",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			types, err := store.ListOperationTypes(cmd.Context())
			if err != nil {
				return err
			}
			return cli.RenderOperationTypes(cmd.OutOrStdout(), types)
		},
	})
	cmd.AddCommand(optypesAddCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Report external mappings claimed by more than one active type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			types, err := store.ListOperationTypes(cmd.Context())
			if err != nil {
				return err
			}
			conflicts := engine.ValidateMappings(types)
			if err := cli.RenderConflicts(cmd.OutOrStdout(), conflicts); err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return errAmbiguousMappings
			}
			return nil
		},
	})

	return cmd
}

func optypesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <code>",
		Short: "Add an operation type",
		Example: `  ledger optypes add DEPOSIT --available + --map 7/in
  ledger optypes add ATM_WITHDRAWAL --available - --map 8/out --description "Cash withdrawal"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			available, _ := cmd.Flags().GetString("available")
			blocked, _ := cmd.Flags().GetString("blocked")
			description, _ := cmd.Flags().GetString("description")
			rawMappings, _ := cmd.Flags().GetStringArray("map")
			inactive, _ := cmd.Flags().GetBool("inactive")

			opType := &model.OperationType{
				Code:        strings.TrimSpace(args[0]),
				Description: description,
				Active:      !inactive,
			}
			var err error
			if opType.AvailableSign, err = parseSign(available); err != nil {
				return err
			}
			if opType.BlockedSign, err = parseSign(blocked); err != nil {
				return err
			}
			for _, raw := range rawMappings {
				m, err := parseMapping(raw)
				if err != nil {
					return err
				}
				opType.ExternalMappings = append(opType.ExternalMappings, m)
			}

			store, _, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.CreateOperationType(cmd.Context(), opType); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created operation type %s (id %d)", opType.Code, opType.ID)))
			return err
		},
	}

	cmd.Flags().String("available", "+", "Sign applied to the available balance (+ or -)")
	cmd.Flags().String("blocked", "+", "Sign applied to the blocked balance (+ or -)")
	cmd.Flags().String("description", "", "Human readable description")
	cmd.Flags().StringArray("map", nil, "External mapping as <code>/<in|out>; repeatable")
	cmd.Flags().Bool("inactive", false, "Create the type inactive")

	return cmd
}

func parseSign(s string) (model.Sign, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "+", "plus":
		return model.SignPlus, nil
	case "-", "minus":
		return model.SignMinus, nil
	default:
		return "", fmt.Errorf("invalid sign %q: use + or -", s)
	}
}

// parseMapping parses "<code>/<in|out>".
func parseMapping(s string) (model.ExternalTypeMapping, error) {
	code, dir, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return model.ExternalTypeMapping{}, fmt.Errorf("invalid mapping %q: want <code>/<in|out>", s)
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return model.ExternalTypeMapping{}, fmt.Errorf("invalid mapping %q: code must be numeric", s)
	}
	direction := model.Direction(strings.ToLower(dir))
	if !direction.IsValid() {
		return model.ExternalTypeMapping{}, fmt.Errorf("invalid mapping %q: direction must be in or out", s)
	}
	return model.ExternalTypeMapping{Code: n, Direction: direction}, nil
}
