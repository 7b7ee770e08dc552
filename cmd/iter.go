package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/nomasters/flatstore"
	"github.com/spf13/cobra"
)

var iterFrom uint64

func init() {
	iterCmd.Flags().Uint64Var(&iterFrom, "from", 0, "First seqno to stream")
	rootCmd.AddCommand(iterCmd)
}

var iterCmd = &cobra.Command{
	Use:   "iter <dir>",
	Short: "Stream every committed record as seqno<TAB>hex",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(args[0], flatstore.ReadOnly)
		if err != nil {
			return err
		}
		defer db.Close()

		it := db.IterFrom(iterFrom)
		seqno := iterFrom
		for {
			record, ok, err := it.Next()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			fmt.Printf("%d\t%s\n", seqno, hex.EncodeToString(record))
			seqno++
		}
	},
}
