package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var prefixCmd = &cobra.Command{
	Use:   "prefix [text]",
	Short: "Show or set the name prefix of recorded waves",
	Long: `Recorded waves are named "<prefix> <YYYY-MM-DD HH.MM.SS>". Characters
that are not allowed in file names are replaced by underscores. The prefix is
kept in the state file across sessions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(nil, false, nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		if len(args) == 0 {
			fmt.Println(svc.NamePrefix())
			return nil
		}

		text, err := svc.SetNamePrefix(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Name prefix set to %q\n", text)
		return nil
	},
}
