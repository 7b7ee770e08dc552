package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/nomasters/flatstore"
	"github.com/spf13/cobra"
)

var appendFile string

func init() {
	appendCmd.Flags().StringVar(&appendFile, "file", "", "Read the record from a file instead of stdin")
	rootCmd.AddCommand(appendCmd)
}

var appendCmd = &cobra.Command{
	Use:   "append <dir>",
	Short: "Append one record, read from stdin or --file, and print its seqno",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = os.Stdin
		if appendFile != "" {
			f, err := os.Open(appendFile)
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		record, err := io.ReadAll(r)
		if err != nil {
			return err
		}

		db, err := openStore(args[0], flatstore.ReadWrite)
		if err != nil {
			return err
		}
		defer db.Close()

		seqno, err := db.Append(record)
		if err != nil {
			return err
		}
		fmt.Println(seqno)
		return nil
	},
}
