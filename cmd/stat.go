package cmd

import (
	"fmt"

	"github.com/nomasters/flatstore"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statCmd)
}

var statCmd = &cobra.Command{
	Use:   "stat <dir>",
	Short: "Print the record count and emptiness of a store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(args[0], flatstore.ReadOnly)
		if err != nil {
			return err
		}
		defer db.Close()

		stats := db.Stats()
		fmt.Printf("len: %d\n", stats.Len)
		fmt.Printf("is_empty: %v\n", stats.Len == 0)
		fmt.Printf("flatfile_bytes: %d\n", stats.FlatFileBytes)
		fmt.Printf("flatfile_mmaps: %d\n", stats.FlatFileMmaps)
		fmt.Printf("seqno_index_bytes: %d\n", stats.SeqnoIndexBytes)
		fmt.Printf("seqno_index_mmaps: %d\n", stats.SeqnoIndexMmaps)
		return nil
	},
}
