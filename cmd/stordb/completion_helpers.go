package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/vrwmiller/stordb/internal/cli"
	"github.com/vrwmiller/stordb/pkg/store"
)

func fieldNames(updatable bool) []string {
	var names []string
	for _, f := range store.Fields {
		if updatable && !f.Updatable() {
			continue
		}
		names = append(names, string(f))
	}
	return names
}

// completeLookupField completes the FIELD argument of lookup-field.
func completeLookupField(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return cli.MatchPrefix(toComplete, fieldNames(false)), cobra.ShellCompDirectiveNoFileComp
}

// completeAssignments completes FIELD= for update arguments after the id.
func completeAssignments(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 || strings.Contains(toComplete, "=") {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	matches := cli.MatchPrefix(toComplete, fieldNames(true))
	for i, m := range matches {
		matches[i] = m + "="
	}
	return matches, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}

// completeCipher completes the --cipher flag.
func completeCipher(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return cli.MatchPrefix(toComplete, []string{"ansible", "sealed", "tool"}), cobra.ShellCompDirectiveNoFileComp
}

// registerCompletionFunctions registers ValidArgsFunction for commands that
// take field names. Flag completions are registered next to their flags.
func registerCompletionFunctions() {
	lookupFieldCmd.ValidArgsFunction = completeLookupField
	updateCmd.ValidArgsFunction = completeAssignments
}
