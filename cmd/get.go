package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/nomasters/flatstore"
	"github.com/spf13/cobra"
)

var getHex bool

func init() {
	getCmd.Flags().BoolVar(&getHex, "hex", false, "Print the record hex-encoded instead of raw")
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get <dir> <seqno>",
	Short: "Print the record at seqno",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		seqno, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seqno %q: %w", args[1], err)
		}

		db, err := openStore(args[0], flatstore.ReadOnly)
		if err != nil {
			return err
		}
		defer db.Close()

		record, ok, err := db.GetBySeqno(seqno)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("seqno %d not found", seqno)
		}
		if getHex {
			fmt.Println(hex.EncodeToString(record))
			return nil
		}
		_, err = os.Stdout.Write(record)
		return err
	},
}
