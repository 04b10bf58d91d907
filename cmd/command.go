package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var commandCmd = &cobra.Command{
	Use:   "command [label]",
	Short: "List or run the machine menu commands (Help, About...)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(nil, false, nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		if len(args) == 0 {
			for _, c := range svc.Commands() {
				fmt.Println(c.Label)
			}
			return nil
		}

		msg, err := svc.RunCommand(args[0])
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	},
}
